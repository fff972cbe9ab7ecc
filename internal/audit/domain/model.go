package domain

import (
	"time"

	"github.com/smallbiznis/coursepay/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionEntitlementGranted          = "entitlement.granted"
	ActionCatalogPublished            = "catalog.published"
	ActionNotificationPartialDelivery = "notification.partial_delivery"
)

const (
	TargetInvoice = "invoice"
	TargetCourse  = "course"
)

// AuditLog is an append-only record of a state change worth answering
// questions about later.
type AuditLog struct {
	ID         int64             `json:"id,string" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	After      *pagination.Position
	Limit      int
}
