package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID, productID string) (*domain.Entitlement, error) {
	var e domain.Entitlement
	err := db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert overwrites the per-product metadata of an existing row.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, e *domain.Entitlement) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"purchased_at", "expires_at", "duration_days", "source_invoice_id", "amount",
		}),
	}).Create(e).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Entitlement, error) {
	var items []domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, product_id, purchased_at, expires_at, duration_days, source_invoice_id, amount
		 FROM user_entitlements WHERE user_id = ? ORDER BY purchased_at DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
