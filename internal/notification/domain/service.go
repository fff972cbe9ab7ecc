package domain

import (
	"context"
	"errors"
)

type Service interface {
	NotifyOne(ctx context.Context, recipientID string, payload Payload) error
	NotifyAll(ctx context.Context, recipients []string, payload Payload) Summary
	List(ctx context.Context, recipientID string, req ListRequest) (ListResponse, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}

var (
	ErrInvalidRecipient = errors.New("invalid_recipient")
	ErrInvalidTitle     = errors.New("invalid_title")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("notification_not_found")
)
