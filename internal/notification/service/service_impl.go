package service

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/smallbiznis/coursepay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Checkout *config.CheckoutConfigHolder
	Metrics  *metrics.CheckoutMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	checkout *config.CheckoutConfigHolder
	metrics  *metrics.CheckoutMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("notification.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		checkout: p.Checkout,
		metrics:  p.Metrics,
	}
}

func (s *Service) NotifyOne(ctx context.Context, recipientID string, payload domain.Payload) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return domain.ErrInvalidRecipient
	}
	if strings.TrimSpace(payload.Title) == "" {
		return domain.ErrInvalidTitle
	}
	err := s.write(ctx, recipientID, payload)
	if err != nil {
		s.metrics.NotificationsWritten(0, 1)
		return err
	}
	s.metrics.NotificationsWritten(1, 0)
	return nil
}

// NotifyAll writes one notification per recipient in fixed size batches.
// Writes inside a batch run concurrently; a batch finishes before the next
// one starts. Failed writes are collected in the summary.
func (s *Service) NotifyAll(ctx context.Context, recipients []string, payload domain.Payload) domain.Summary {
	summary := domain.Summary{Total: len(recipients)}
	if len(recipients) == 0 {
		return summary
	}

	batchSize := s.checkout.Get().FanoutBatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultCheckoutConfig().FanoutBatchSize
	}

	for start := 0; start < len(recipients); start += batchSize {
		batch := recipients[start:min(start+batchSize, len(recipients))]

		if err := ctx.Err(); err != nil {
			for _, id := range batch {
				summary.Failed = append(summary.Failed, domain.Failure{RecipientID: id, Err: err})
			}
			continue
		}

		summary.BatchSizes = append(summary.BatchSizes, len(batch))
		summary.Failed = append(summary.Failed, s.writeBatch(ctx, batch, payload)...)
	}
	summary.Succeeded = summary.Total - len(summary.Failed)

	s.metrics.NotificationsWritten(summary.Succeeded, len(summary.Failed))
	if len(summary.Failed) > 0 {
		s.metrics.PartialDelivery()
	}
	s.log.Info("notification fan-out finished",
		zap.String("type", payload.Type),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("batches", len(summary.BatchSizes)),
	)
	return summary
}

func (s *Service) writeBatch(ctx context.Context, batch []string, payload domain.Payload) []domain.Failure {
	var (
		mu       sync.Mutex
		failures []domain.Failure
		g        errgroup.Group
	)
	g.SetLimit(len(batch))

	for _, recipientID := range batch {
		recipientID := strings.TrimSpace(recipientID)
		g.Go(func() error {
			var err error
			if recipientID == "" {
				err = domain.ErrInvalidRecipient
			} else {
				err = s.write(ctx, recipientID, payload)
			}
			if err != nil {
				mu.Lock()
				failures = append(failures, domain.Failure{RecipientID: recipientID, Err: err})
				mu.Unlock()
			}
			// Never fail the group; one recipient must not stop the others.
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func (s *Service) write(ctx context.Context, recipientID string, payload domain.Payload) error {
	return s.repo.Insert(ctx, s.db, &domain.Notification{
		ID:          s.genID.Generate().Int64(),
		RecipientID: recipientID,
		Title:       strings.TrimSpace(payload.Title),
		Body:        strings.TrimSpace(payload.Body),
		Type:        payload.Type,
		Link:        payload.Link,
		CreatedAt:   s.clock.Now(),
	})
}

// List returns the recipient's inbox newest first, one page at a time.
func (s *Service) List(ctx context.Context, recipientID string, req domain.ListRequest) (domain.ListResponse, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return domain.ListResponse{}, domain.ErrInvalidRecipient
	}
	after, err := pagination.ParsePageToken(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}
	pageSize := pagination.PageSize(req.PageSize)

	items, err := s.repo.ListByRecipient(ctx, s.db, domain.ListFilter{
		RecipientID: recipientID,
		After:       after,
		Limit:       pageSize,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, info := pagination.BuildCursorPageInfo(items, pageSize, func(n domain.Notification) string {
		return pagination.EncodePosition(n.ID, n.CreatedAt)
	})
	if items == nil {
		items = []domain.Notification{}
	}
	return domain.ListResponse{PageInfo: info, Notifications: items}, nil
}

// MarkRead flips the read flag. Only the recipient may do this; another
// user's notification looks like a missing one.
func (s *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return domain.ErrInvalidRecipient
	}
	notificationID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || notificationID <= 0 {
		return domain.ErrInvalidID
	}
	ok, err := s.repo.MarkRead(ctx, s.db, recipientID, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}
