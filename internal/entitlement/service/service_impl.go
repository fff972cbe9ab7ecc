package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/coursepay/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/coursepay/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/entitlement/domain"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/smallbiznis/coursepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxGrantAttempts = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	InvoiceRepo checkoutdomain.Repository
	Durations   catalogdomain.DurationSource
	Notifier    notificationdomain.Service
	Audit       auditdomain.Service
	Checkout    *config.CheckoutConfigHolder
	Metrics     *metrics.CheckoutMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	invoiceRepo checkoutdomain.Repository
	durations   catalogdomain.DurationSource
	notifier    notificationdomain.Service
	audit       auditdomain.Service
	checkout    *config.CheckoutConfigHolder
	metrics     *metrics.CheckoutMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("entitlement.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		durations:   p.Durations,
		notifier:    p.Notifier,
		audit:       p.Audit,
		checkout:    p.Checkout,
		metrics:     p.Metrics,
	}
}

// Grant marks the invoice PAID and writes the owner's entitlement in one
// transaction. The PENDING to PAID update is conditional, so of several
// concurrent callers exactly one sees its update applied and performs the
// grant; the rest return Granted=false. A PAID invoice whose entitlement is
// missing is repaired.
func (s *Service) Grant(ctx context.Context, invoiceID int64) (*domain.GrantResult, error) {
	if invoiceID <= 0 {
		return nil, checkoutdomain.ErrInvalidInvoiceID
	}

	// Read outside the transaction; the transaction only holds its own
	// connection.
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, checkoutdomain.ErrInvoiceNotFound
	}
	days := s.durationDays(ctx, invoice.ProductID)

	var (
		result   *domain.GrantResult
		granted  *domain.Entitlement
		repaired bool
	)
	for attempt := 1; ; attempt++ {
		result, granted, repaired = &domain.GrantResult{}, nil, false
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.invoiceRepo.FindForUpdate(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if current == nil {
				return checkoutdomain.ErrInvoiceNotFound
			}

			now := s.clock.Now()
			flipped, err := s.invoiceRepo.MarkPaid(ctx, tx, current.ID, now)
			if err != nil {
				return err
			}

			if !flipped {
				if current.Status != checkoutdomain.StatusPaid {
					return checkoutdomain.ErrInvoiceNotPayable
				}
				existing, err := s.repo.Find(ctx, tx, current.OwnerID, current.ProductID)
				if err != nil {
					return err
				}
				if existing != nil {
					result.DurationDays = existing.DurationDays
					result.ExpiresAt = existing.ExpiresAt
					return nil
				}
				s.log.Warn("paid invoice without entitlement, repairing", zap.Int64("invoice_id", current.ID))
			repaired = true
				if current.PaidAt != nil {
					now = *current.PaidAt
				}
			}

			expiresAt := now.AddDate(0, 0, days)
			e := &domain.Entitlement{
				UserID:          current.OwnerID,
				ProductID:       current.ProductID,
				PurchasedAt:     now,
				ExpiresAt:       &expiresAt,
				DurationDays:    days,
				SourceInvoiceID: current.ID,
				Amount:          current.Amount,
			}
			if err := s.repo.Upsert(ctx, tx, e); err != nil {
				return fmt.Errorf("upsert entitlement: %w", err)
			}
			granted = e
			result.Granted = true
			result.DurationDays = days
			result.ExpiresAt = &expiresAt
			return nil
		})
		if err == nil || !db.IsRetryableTxErr(err) || attempt >= maxGrantAttempts {
			break
		}
		s.log.Warn("grant transaction conflict, retrying", zap.Int64("invoice_id", invoiceID), zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, err
	}

	if granted != nil {
		s.metrics.EntitlementGranted()
		s.log.Info("entitlement granted",
			zap.Int64("invoice_id", invoiceID),
			zap.String("owner_id", granted.UserID),
			zap.String("product_id", granted.ProductID),
			zap.Int("duration_days", granted.DurationDays),
		)
		s.auditGranted(ctx, invoiceID, granted, repaired)
		s.notifyGranted(ctx, granted)
	}
	return result, nil
}

func (s *Service) durationDays(ctx context.Context, productID string) int {
	defaultDays := s.checkout.Get().DefaultDurationDays
	if defaultDays <= 0 {
		defaultDays = domain.DefaultDurationDays
	}
	cfg, err := s.durations.GetProductDurationConfig(ctx, productID)
	if err != nil {
		if !errors.Is(err, catalogdomain.ErrNotFound) {
			s.log.Warn("duration lookup failed, using default", zap.String("product_id", productID), zap.Error(err))
		}
		return defaultDays
	}
	return domain.ResolveDays(cfg.DurationDays, cfg.DurationLabel, defaultDays)
}

func (s *Service) auditGranted(ctx context.Context, invoiceID int64, e *domain.Entitlement, repaired bool) {
	metadata := map[string]any{
		"owner_id":      e.UserID,
		"product_id":    e.ProductID,
		"duration_days": e.DurationDays,
		"amount":        e.Amount,
		"repaired":      repaired,
	}
	if e.ExpiresAt != nil {
		metadata["expires_at"] = e.ExpiresAt.UTC().Format(time.RFC3339)
	}
	target := strconv.FormatInt(invoiceID, 10)
	// Logged by the audit service on failure.
	_ = s.audit.AuditLog(context.WithoutCancel(ctx), "", nil, auditdomain.ActionEntitlementGranted, auditdomain.TargetInvoice, &target, metadata)
}

// notifyGranted is best effort. The grant is already committed.
func (s *Service) notifyGranted(ctx context.Context, e *domain.Entitlement) {
	body := "Your access is now active."
	if e.ExpiresAt != nil {
		body = fmt.Sprintf("Your access is active until %s.", e.ExpiresAt.Format(time.DateOnly))
	}
	err := s.notifier.NotifyOne(context.WithoutCancel(ctx), e.UserID, notificationdomain.Payload{
		Title: "Purchase complete",
		Body:  body,
		Type:  notificationdomain.TypeEntitlementGranted,
		Link:  "/courses/" + e.ProductID,
	})
	if err != nil {
		s.log.Warn("grant notification failed",
			zap.String("owner_id", e.UserID),
			zap.String("product_id", e.ProductID),
			zap.Error(err),
		)
	}
}

func (s *Service) HasAccess(ctx context.Context, userID, productID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, domain.ErrInvalidUser
	}
	e, err := s.repo.Find(ctx, s.db, userID, strings.TrimSpace(productID))
	if err != nil {
		return false, err
	}
	return e != nil && e.Active(s.clock.Now()), nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Entitlement{}
	}
	return items, nil
}
