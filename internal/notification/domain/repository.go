package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	ListByRecipient(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, recipientID string, id int64) (bool, error)
}
