package domain

import (
	"time"

	"github.com/smallbiznis/coursepay/internal/gateway"
	"gorm.io/datatypes"
)

type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "PENDING"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
	StatusExpired   InvoiceStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// Invoice is one purchase attempt. It is never deleted and doubles as the
// audit trail; access is decided by entitlements only.
type Invoice struct {
	ID               int64                                 `json:"id" gorm:"primaryKey"`
	OwnerID          string                                `json:"owner_id" gorm:"type:text;not null;index"`
	ProductID        string                                `json:"product_id" gorm:"type:text;not null"`
	Amount           int64                                 `json:"amount" gorm:"not null"`
	Description      string                                `json:"description" gorm:"type:text"`
	CorrelationID    string                                `json:"-" gorm:"type:text;not null;uniqueIndex"`
	GatewayInvoiceID string                                `json:"gateway_invoice_id" gorm:"type:text;not null;uniqueIndex"`
	Status           InvoiceStatus                         `json:"status" gorm:"type:text;not null"`
	QRText           string                                `json:"-" gorm:"column:qr_text;type:text"`
	QRImage          string                                `json:"-" gorm:"column:qr_image;type:text"`
	DeepLink         string                                `json:"-" gorm:"type:text"`
	DeepLinks        datatypes.JSONSlice[gateway.DeepLink] `json:"-" gorm:"type:jsonb"`
	GatewayPayload   datatypes.JSON                        `json:"-" gorm:"type:jsonb"`
	PaidAt           *time.Time                            `json:"paid_at,omitempty"`
	CreatedAt        time.Time                             `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time                             `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "checkout_invoices" }

type CreateInvoiceRequest struct {
	OwnerID     string `json:"-"`
	ProductID   string `json:"productId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// InvoiceView is what the payer's client sees. It omits the correlation id
// and the raw gateway payload.
type InvoiceView struct {
	InvoiceID        string             `json:"invoiceId"`
	GatewayInvoiceID string             `json:"gatewayInvoiceId"`
	ProductID        string             `json:"productId"`
	Amount           int64              `json:"amount"`
	Status           InvoiceStatus      `json:"status"`
	ScanImage        string             `json:"scanImage,omitempty"`
	ScanText         string             `json:"scanText,omitempty"`
	DeepLink         string             `json:"deepLink,omitempty"`
	DeepLinkList     []gateway.DeepLink `json:"deepLinkList,omitempty"`
	ScanUnavailable  bool               `json:"scanUnavailable,omitempty"`
	PaidAt           *time.Time         `json:"paidAt,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
}

type CheckResult struct {
	Paid   bool          `json:"paid"`
	Status InvoiceStatus `json:"status"`
}
