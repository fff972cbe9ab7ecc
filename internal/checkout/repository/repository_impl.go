package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/coursepay/internal/checkout/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByCorrelationID(ctx context.Context, db *gorm.DB, correlationID string) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).Where("correlation_id = ?", correlationID))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE checkout_invoices
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPaid,
		at,
		at,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, id int64, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkout_invoices SET updated_at = ? WHERE id = ? AND status = ?`,
		at, id, domain.StatusPending,
	).Error
}

func first(stmt *gorm.DB) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := stmt.Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
