package domain

import (
	"fmt"
	"time"

	"github.com/smallbiznis/coursepay/pkg/db/pagination"
)

const (
	TypeEntitlementGranted = "entitlement_granted"
	TypeCoursePublished    = "course_published"
)

type Notification struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	RecipientID string    `json:"recipient_id" gorm:"type:text;not null;index:idx_notifications_recipient,priority:1"`
	Title       string    `json:"title" gorm:"type:text;not null"`
	Body        string    `json:"body" gorm:"type:text"`
	Type        string    `json:"type" gorm:"type:text;not null"`
	Link        string    `json:"link" gorm:"type:text"`
	Read        bool      `json:"read" gorm:"column:is_read;not null;default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index:idx_notifications_recipient,priority:2"`
}

func (Notification) TableName() string { return "notifications" }

type ListRequest struct {
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Notifications []Notification `json:"data"`
}

type ListFilter struct {
	RecipientID string
	After       *pagination.Position
	Limit       int
}

// Payload is the recipient independent part of a notification.
type Payload struct {
	Title string
	Body  string
	Type  string
	Link  string
}

type Failure struct {
	RecipientID string
	Err         error
}

// Summary reports a fan-out. Failed recipients never abort the rest.
type Summary struct {
	Total      int
	Succeeded  int
	Failed     []Failure
	BatchSizes []int
}

func (s Summary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	return &PartialDeliveryError{Total: s.Total, Failed: len(s.Failed), First: s.Failed[0].Err}
}

// PartialDeliveryError is reported, never returned from the action that
// triggered the fan-out.
type PartialDeliveryError struct {
	Total  int
	Failed int
	First  error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("notification fan-out: %d of %d deliveries failed: %v", e.Failed, e.Total, e.First)
}

func (e *PartialDeliveryError) Unwrap() error {
	return e.First
}
