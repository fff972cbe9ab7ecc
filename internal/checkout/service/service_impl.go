package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/smallbiznis/coursepay/internal/providers/pdf"
	"github.com/smallbiznis/coursepay/internal/qrcode"
	"github.com/smallbiznis/coursepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Gateway is the slice of the payment gateway client checkout needs.
type Gateway interface {
	CreateInvoice(ctx context.Context, in gateway.CreateInvoiceInput) (*gateway.CreatedInvoice, error)
	CheckPayment(ctx context.Context, gatewayInvoiceID string) (gateway.PaymentCheck, error)
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       config.Config
	Repo         domain.Repository
	Gateway      Gateway
	Entitlements entitlementdomain.Service
	QR           *qrcode.Renderer
	PDF          pdf.Provider
	Metrics      *metrics.CheckoutMetrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	publicBaseURL string
	repo          domain.Repository
	gateway       Gateway
	entitlements  entitlementdomain.Service
	qr            *qrcode.Renderer
	pdf           pdf.Provider
	metrics       *metrics.CheckoutMetrics
}

func New(p Params) domain.Service {
	qr := p.QR
	if qr == nil {
		qr = qrcode.NewRenderer()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("checkout.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		publicBaseURL: strings.TrimRight(p.Config.PublicBaseURL, "/"),
		repo:          p.Repo,
		gateway:       p.Gateway,
		entitlements:  p.Entitlements,
		qr:            qr,
		pdf:           p.PDF,
		metrics:       p.Metrics,
	}
}

// CreateInvoice opens a gateway invoice for the owner and stores it as
// PENDING. Nothing is written when the gateway call fails. A missing scan
// artifact is not an error; the view reports ScanUnavailable instead.
func (s *Service) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.InvoiceView, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	productID := strings.TrimSpace(req.ProductID)
	switch {
	case ownerID == "":
		return nil, domain.ErrInvalidOwner
	case productID == "":
		return nil, domain.ErrInvalidProduct
	case req.Amount <= 0:
		return nil, domain.ErrInvalidAmount
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Course " + productID
	}

	now := s.clock.Now()
	correlationID := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	created, err := s.gateway.CreateInvoice(ctx, gateway.CreateInvoiceInput{
		CorrelationID: correlationID,
		ReceiverCode:  ownerID,
		Description:   description,
		Amount:        req.Amount,
		CallbackURL:   s.callbackURL(correlationID),
	})
	if err != nil {
		s.metrics.InvoiceCreated("gateway_error")
		s.log.Warn("gateway invoice create failed",
			zap.String("owner_id", ownerID),
			zap.String("product_id", productID),
			zap.Error(err),
		)
		if errors.Is(err, gateway.ErrGatewayAuth) || errors.Is(err, gateway.ErrGatewayInvoice) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayInvoice, err)
	}

	invoice := &domain.Invoice{
		ID:               s.genID.Generate().Int64(),
		OwnerID:          ownerID,
		ProductID:        productID,
		Amount:           req.Amount,
		Description:      description,
		CorrelationID:    correlationID,
		GatewayInvoiceID: created.InvoiceID,
		Status:           domain.StatusPending,
		QRText:           created.QRText,
		QRImage:          s.scanImage(created.InvoiceFields),
		DeepLink:         created.ShortURL,
		DeepLinks:        datatypes.NewJSONSlice(created.DeepLinks),
		GatewayPayload:   datatypes.JSON(created.Raw),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if invoice.DeepLink == "" && len(created.DeepLinks) > 0 {
		invoice.DeepLink = created.DeepLinks[0].Link
	}

	if err := s.repo.Insert(ctx, s.db, invoice); err != nil {
		s.metrics.InvoiceCreated("store_error")
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: gateway reused invoice id %s", gateway.ErrGatewayInvoice, invoice.GatewayInvoiceID)
		}
		return nil, fmt.Errorf("store invoice: %w", err)
	}

	view := toView(invoice)
	outcome := "created"
	if view.ScanUnavailable {
		outcome = "created_without_scan"
		s.log.Warn("invoice has no scan artifact", zap.Int64("invoice_id", invoice.ID))
	}
	s.metrics.InvoiceCreated(outcome)
	s.log.Info("invoice created",
		zap.Int64("invoice_id", invoice.ID),
		zap.String("gateway_invoice_id", invoice.GatewayInvoiceID),
		zap.String("owner_id", ownerID),
		zap.String("product_id", productID),
		zap.Int64("amount", req.Amount),
	)
	return view, nil
}

// scanImage returns the image the gateway supplied, or renders one from the
// first payload available: scan text, short url, then the first deep link.
func (s *Service) scanImage(fields gateway.InvoiceFields) string {
	if fields.QRImage != "" {
		return fields.QRImage
	}
	payloads := []string{fields.QRText, fields.ShortURL}
	if len(fields.DeepLinks) > 0 {
		payloads = append(payloads, fields.DeepLinks[0].Link)
	}
	for _, payload := range payloads {
		if payload == "" {
			continue
		}
		img, err := s.qr.Base64PNG(payload)
		if err != nil {
			s.log.Warn("render scan image failed", zap.Error(err))
			continue
		}
		return img
	}
	return ""
}

func (s *Service) callbackURL(correlationID string) string {
	return s.publicBaseURL + "/checkout/callback?invoice=" + url.QueryEscape(correlationID)
}

// CheckPaid answers whether the owner's invoice is paid, asking the gateway
// only while the invoice is still PENDING. A paid answer grants the
// entitlement before returning.
func (s *Service) CheckPaid(ctx context.Context, ownerID, invoiceID string) (*domain.CheckResult, error) {
	invoice, err := s.ownedInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.check(ctx, invoice)
}

func (s *Service) HandleCallback(ctx context.Context, correlationID string) (*domain.CheckResult, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, domain.ErrInvalidInvoiceID
	}
	invoice, err := s.repo.FindByCorrelationID(ctx, s.db, correlationID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	s.log.Info("gateway callback received", zap.Int64("invoice_id", invoice.ID))
	return s.check(ctx, invoice)
}

func (s *Service) check(ctx context.Context, invoice *domain.Invoice) (*domain.CheckResult, error) {
	if invoice.Status == domain.StatusPaid {
		// A paid invoice may still lack its entitlement if an earlier grant
		// failed after the status flip; Grant repairs that.
		if _, err := s.entitlements.Grant(ctx, invoice.ID); err != nil {
			s.log.Warn("entitlement repair failed", zap.Int64("invoice_id", invoice.ID), zap.Error(err))
		}
		s.metrics.PaymentChecked(string(domain.StatusPaid))
		return &domain.CheckResult{Paid: true, Status: domain.StatusPaid}, nil
	}
	if invoice.Status.Terminal() {
		s.metrics.PaymentChecked(string(invoice.Status))
		return &domain.CheckResult{Paid: false, Status: invoice.Status}, nil
	}

	payment, err := s.gateway.CheckPayment(ctx, invoice.GatewayInvoiceID)
	if err != nil {
		s.metrics.PaymentChecked("gateway_error")
		s.log.Warn("gateway payment check failed", zap.Int64("invoice_id", invoice.ID), zap.Error(err))
		if errors.Is(err, gateway.ErrGatewayAuth) || errors.Is(err, gateway.ErrGatewayInvoice) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayInvoice, err)
	}

	if !payment.Paid {
		if err := s.repo.Touch(ctx, s.db, invoice.ID, s.clock.Now()); err != nil {
			s.log.Warn("touch invoice failed", zap.Int64("invoice_id", invoice.ID), zap.Error(err))
		}
		s.metrics.PaymentChecked(string(domain.StatusPending))
		return &domain.CheckResult{Paid: false, Status: domain.StatusPending}, nil
	}

	if _, err := s.entitlements.Grant(ctx, invoice.ID); err != nil {
		return nil, fmt.Errorf("grant entitlement: %w", err)
	}
	s.metrics.PaymentChecked(string(domain.StatusPaid))
	return &domain.CheckResult{Paid: true, Status: domain.StatusPaid}, nil
}

func (s *Service) GetInvoice(ctx context.Context, ownerID, invoiceID string) (*domain.InvoiceView, error) {
	invoice, err := s.ownedInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return nil, err
	}
	return toView(invoice), nil
}

// Receipt renders a PDF receipt for a paid invoice.
func (s *Service) Receipt(ctx context.Context, ownerID, invoiceID string) ([]byte, error) {
	invoice, err := s.ownedInvoice(ctx, ownerID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.StatusPaid || invoice.PaidAt == nil {
		return nil, domain.ErrInvoiceNotPaid
	}

	data := pdf.ReceiptData{
		InvoiceID:        strconv.FormatInt(invoice.ID, 10),
		GatewayInvoiceID: invoice.GatewayInvoiceID,
		OwnerID:          invoice.OwnerID,
		ProductID:        invoice.ProductID,
		Description:      invoice.Description,
		Amount:           invoice.Amount,
		PaidAt:           *invoice.PaidAt,
	}
	items, err := s.entitlements.List(ctx, invoice.OwnerID)
	if err != nil {
		return nil, err
	}
	for _, e := range items {
		if e.SourceInvoiceID == invoice.ID {
			data.AccessUntil = e.ExpiresAt
			break
		}
	}
	return s.pdf.GenerateReceipt(ctx, data)
}

// ownedInvoice loads the invoice and hides it from anyone but its owner.
func (s *Service) ownedInvoice(ctx context.Context, ownerID, invoiceID string) (*domain.Invoice, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrInvalidOwner
	}
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if invoice.OwnerID != ownerID {
		s.log.Warn("invoice ownership mismatch", zap.Int64("invoice_id", id), zap.String("caller_id", ownerID))
		return nil, domain.ErrInvoiceOwnership
	}
	return invoice, nil
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidInvoiceID
	}
	return id, nil
}

func toView(invoice *domain.Invoice) *domain.InvoiceView {
	view := &domain.InvoiceView{
		InvoiceID:        strconv.FormatInt(invoice.ID, 10),
		GatewayInvoiceID: invoice.GatewayInvoiceID,
		ProductID:        invoice.ProductID,
		Amount:           invoice.Amount,
		Status:           invoice.Status,
		ScanImage:        invoice.QRImage,
		ScanText:         invoice.QRText,
		DeepLink:         invoice.DeepLink,
		DeepLinkList:     []gateway.DeepLink(invoice.DeepLinks),
		PaidAt:           invoice.PaidAt,
		CreatedAt:        invoice.CreatedAt,
	}
	view.ScanUnavailable = view.ScanImage == "" && view.ScanText == "" && view.DeepLink == ""
	if view.PaidAt != nil {
		t := view.PaidAt.UTC()
		view.PaidAt = &t
	}
	view.CreatedAt = view.CreatedAt.UTC()
	return view
}
