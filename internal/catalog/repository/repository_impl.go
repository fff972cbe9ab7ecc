package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/coursepay/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Course, error) {
	var c domain.Course
	err := db.WithContext(ctx).Raw(
		`SELECT id, title, slug, price, duration_days, duration_label, published_at, notified_at, created_at, updated_at
		 FROM courses WHERE id = ?`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) MarkPublished(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE courses SET published_at = ?, updated_at = ? WHERE id = ? AND published_at IS NULL`,
		at, at, id,
	).Error
}

func (r *repo) MarkNotified(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE courses SET notified_at = ?, updated_at = ? WHERE id = ? AND notified_at IS NULL`,
		at, at, id,
	).Error
}

func (r *repo) ListRecipientIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(`SELECT id FROM users ORDER BY id`).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
