package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Grant is idempotent per invoice: only the call that moves the invoice
	// from PENDING to PAID writes the entitlement and notifies the owner.
	Grant(ctx context.Context, invoiceID int64) (*GrantResult, error)
	HasAccess(ctx context.Context, userID, productID string) (bool, error)
	List(ctx context.Context, userID string) ([]Entitlement, error)
}

var ErrInvalidUser = errors.New("invalid_user")
