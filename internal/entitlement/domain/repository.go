package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, userID, productID string) (*Entitlement, error)
	Upsert(ctx context.Context, db *gorm.DB, e *Entitlement) error
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Entitlement, error)
}
