package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Invoice, error)
	FindByCorrelationID(ctx context.Context, db *gorm.DB, correlationID string) (*Invoice, error)
	// FindForUpdate row-locks the invoice on dialects that support it.
	FindForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Invoice, error)
	// MarkPaid flips PENDING to PAID and reports whether this call did it.
	MarkPaid(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error)
	Touch(ctx context.Context, db *gorm.DB, id int64, at time.Time) error
}
