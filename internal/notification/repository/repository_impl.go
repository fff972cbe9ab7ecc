package repository

import (
	"context"

	"github.com/smallbiznis/coursepay/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, recipient_id, title, body, type, link, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.RecipientID,
		n.Title,
		n.Body,
		n.Type,
		n.Link,
		n.Read,
		n.CreatedAt,
	).Error
}

func (r *repo) ListByRecipient(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Notification, error) {
	var items []domain.Notification
	stmt := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("recipient_id = ?", filter.RecipientID)
	if filter.After != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.After.CreatedAt,
			filter.After.CreatedAt,
			filter.After.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, recipientID string, id int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET is_read = ? WHERE id = ? AND recipient_id = ?`,
		true,
		id,
		recipientID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// mysql counts only changed rows, so an already read notification
	// reports zero.
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM notifications WHERE id = ? AND recipient_id = ?`,
		id,
		recipientID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
