package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/coursepay/internal/audit/domain"
	"github.com/smallbiznis/coursepay/internal/catalog/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const publishLockTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Notifier notificationdomain.Service
	Audit    auditdomain.Service
	Locker   *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	notifier notificationdomain.Service
	audit    auditdomain.Service
	locker   *ratelimit.Locker
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		notifier: p.Notifier,
		audit:    p.Audit,
		locker:   p.Locker,
	}
}

func (s *Service) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	course, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, domain.ErrNotFound
	}
	return course, nil
}

func (s *Service) GetProductDurationConfig(ctx context.Context, productID string) (domain.DurationConfig, error) {
	course, err := s.GetCourse(ctx, productID)
	if err != nil {
		return domain.DurationConfig{}, err
	}
	return domain.DurationConfig{
		DurationDays:  course.DurationDays,
		DurationLabel: course.DurationLabel,
	}, nil
}

// PublishCourse marks the course published and, the first time only,
// notifies every user. Partial notification failure is logged and does not
// fail the publish. notified_at is written after the fan-out completes so a
// retried publish does not notify twice.
func (s *Service) PublishCourse(ctx context.Context, id string) (*domain.PublishResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	course, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := &domain.PublishResult{CourseID: course.ID, PublishedAt: now}
	if course.PublishedAt != nil {
		result.PublishedAt = *course.PublishedAt
	} else if err := s.repo.MarkPublished(ctx, s.db, course.ID, now); err != nil {
		return nil, err
	}

	if course.NotifiedAt != nil {
		return result, nil
	}

	recipients, err := s.repo.ListRecipientIDs(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	summary := s.notifier.NotifyAll(ctx, recipients, notificationdomain.Payload{
		Title: "New course: " + course.Title,
		Body:  fmt.Sprintf("%s is now available.", course.Title),
		Type:  notificationdomain.TypeCoursePublished,
		Link:  "/courses/" + courseSlug(course),
	})
	if err := summary.Err(); err != nil {
		s.log.Warn("course publish notification partially delivered",
			zap.String("course_id", course.ID),
			zap.Error(err),
		)
	}

	if err := s.repo.MarkNotified(ctx, s.db, course.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	result.Notified = true
	result.Recipients = summary.Total
	result.Failed = len(summary.Failed)
	s.auditPublished(ctx, course.ID, result, summary)
	return result, nil
}

func (s *Service) auditPublished(ctx context.Context, courseID string, result *domain.PublishResult, summary notificationdomain.Summary) {
	ctx = context.WithoutCancel(ctx)
	target := courseID
	_ = s.audit.AuditLog(ctx, "", nil, auditdomain.ActionCatalogPublished, auditdomain.TargetCourse, &target, map[string]any{
		"published_at": result.PublishedAt.UTC().Format(time.RFC3339),
		"recipients":   summary.Total,
		"succeeded":    summary.Succeeded,
		"failed":       len(summary.Failed),
	})

	err := summary.Err()
	if err == nil {
		return
	}
	failed := make([]string, 0, len(summary.Failed))
	for _, f := range summary.Failed {
		failed = append(failed, f.RecipientID)
	}
	_ = s.audit.AuditLog(ctx, "", nil, auditdomain.ActionNotificationPartialDelivery, auditdomain.TargetCourse, &target, map[string]any{
		"recipients":        summary.Total,
		"failed":            len(summary.Failed),
		"failed_recipients": failed,
		"error":             err.Error(),
	})
}

// acquire takes the per-course publish lock. Without redis, publishes are
// not serialised across replicas.
func (s *Service) acquire(ctx context.Context, id string) (func(), error) {
	key := "catalog:publish:" + id
	token, ok, err := s.locker.TryLock(ctx, key, publishLockTTL)
	if errors.Is(err, ratelimit.ErrLockNotConfigured) {
		return func() {}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire publish lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrPublishInProgress
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release publish lock failed", zap.String("course_id", id), zap.Error(err))
		}
	}, nil
}

func courseSlug(c *domain.Course) string {
	if strings.TrimSpace(c.Slug) != "" {
		return c.Slug
	}
	return slug.Make(c.Title)
}
