package domain

import "time"

// Entitlement is the sole authority for "user has access to product".
// ExpiresAt nil means perpetual.
type Entitlement struct {
	UserID          string     `json:"user_id" gorm:"primaryKey;type:text"`
	ProductID       string     `json:"product_id" gorm:"primaryKey;type:text"`
	PurchasedAt     time.Time  `json:"purchased_at" gorm:"not null"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DurationDays    int        `json:"duration_days" gorm:"not null"`
	SourceInvoiceID int64      `json:"source_invoice_id,string" gorm:"not null"`
	Amount          int64      `json:"amount" gorm:"not null"`
}

func (Entitlement) TableName() string { return "user_entitlements" }

// Active reports whether the entitlement grants access at now.
func (e Entitlement) Active(now time.Time) bool {
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}

type GrantResult struct {
	// Granted is true only for the call that moved the invoice to PAID or
	// repaired a missing entitlement.
	Granted      bool
	DurationDays int
	ExpiresAt    *time.Time
}
