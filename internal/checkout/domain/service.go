package domain

import (
	"context"
	"errors"
)

type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*InvoiceView, error)
	CheckPaid(ctx context.Context, ownerID, invoiceID string) (*CheckResult, error)
	GetInvoice(ctx context.Context, ownerID, invoiceID string) (*InvoiceView, error)
	// HandleCallback runs the gateway webhook through the same check and
	// grant path as polling. The caller is the gateway, not the owner.
	HandleCallback(ctx context.Context, correlationID string) (*CheckResult, error)
	Receipt(ctx context.Context, ownerID, invoiceID string) ([]byte, error)
}

var (
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrInvalidProduct    = errors.New("invalid_product")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidInvoiceID  = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound   = errors.New("invoice_not_found")
	ErrInvoiceOwnership  = errors.New("invoice_ownership")
	ErrInvoiceNotPaid    = errors.New("invoice_not_paid")
	ErrInvoiceNotPayable = errors.New("invoice_not_payable")
)
