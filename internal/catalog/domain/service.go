package domain

import (
	"context"
	"errors"
)

// DurationSource is the narrow read contract checkout depends on.
type DurationSource interface {
	GetProductDurationConfig(ctx context.Context, productID string) (DurationConfig, error)
}

type Service interface {
	DurationSource
	GetCourse(ctx context.Context, id string) (*Course, error)
	PublishCourse(ctx context.Context, id string) (*PublishResult, error)
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("course_not_found")
	ErrPublishInProgress = errors.New("publish_in_progress")
)
