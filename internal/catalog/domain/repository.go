package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Course, error)
	MarkPublished(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	MarkNotified(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	ListRecipientIDs(ctx context.Context, db *gorm.DB) ([]string, error)
}
