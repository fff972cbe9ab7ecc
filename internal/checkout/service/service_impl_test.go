package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/coursepay/internal/audit/domain"
	auditrepo "github.com/smallbiznis/coursepay/internal/audit/repository"
	auditservice "github.com/smallbiznis/coursepay/internal/audit/service"
	catalogdomain "github.com/smallbiznis/coursepay/internal/catalog/domain"
	"github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/checkout/repository"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/coursepay/internal/entitlement/repository"
	entitlementservice "github.com/smallbiznis/coursepay/internal/entitlement/service"
	"github.com/smallbiznis/coursepay/internal/gateway"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	notificationrepo "github.com/smallbiznis/coursepay/internal/notification/repository"
	notificationservice "github.com/smallbiznis/coursepay/internal/notification/service"
	"github.com/smallbiznis/coursepay/internal/providers/pdf"
	"github.com/smallbiznis/coursepay/internal/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu      sync.Mutex
	created []gateway.CreateInvoiceInput
	checks  atomic.Int32

	createResp *gateway.CreatedInvoice
	createErr  error
	paid       atomic.Bool
	checkErr   error
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, in gateway.CreateInvoiceInput) (*gateway.CreatedInvoice, error) {
	g.mu.Lock()
	g.created = append(g.created, in)
	g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResp, nil
}

func (g *fakeGateway) CheckPayment(ctx context.Context, gatewayInvoiceID string) (gateway.PaymentCheck, error) {
	g.checks.Add(1)
	if g.checkErr != nil {
		return gateway.PaymentCheck{}, g.checkErr
	}
	if g.paid.Load() {
		return gateway.PaymentCheck{Paid: true, Status: gateway.StatusPaid}, nil
	}
	return gateway.PaymentCheck{Status: gateway.StatusPending}, nil
}

type courseDurations map[string]int

func (c courseDurations) GetProductDurationConfig(ctx context.Context, productID string) (catalogdomain.DurationConfig, error) {
	days, ok := c[productID]
	if !ok {
		return catalogdomain.DurationConfig{}, catalogdomain.ErrNotFound
	}
	return catalogdomain.DurationConfig{DurationDays: &days}, nil
}

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	gateway *fakeGateway
	svc     *Service
}

func newFixture(t *testing.T, created *gateway.CreatedInvoice) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.Invoice{},
		&entitlementdomain.Entitlement{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	checkoutCfg := config.NewStaticCheckoutConfig(config.DefaultCheckoutConfig())

	notifier := notificationservice.New(notificationservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     notificationrepo.Provide(),
		Checkout: checkoutCfg,
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	invoiceRepo := repository.Provide()
	entitlements := entitlementservice.New(entitlementservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        entitlementrepo.Provide(),
		InvoiceRepo: invoiceRepo,
		Durations:   courseDurations{"go-101": 90},
		Notifier:    notifier,
		Checkout:    checkoutCfg,
		Audit:       audit,
	})

	gw := &fakeGateway{createResp: created}
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Config:       config.Config{PublicBaseURL: "https://shop.example"},
		Repo:         invoiceRepo,
		Gateway:      gw,
		Entitlements: entitlements,
		QR:           qrcode.NewRenderer(),
		PDF:          pdf.New(),
	}).(*Service)

	return &fixture{db: db, clock: clk, gateway: gw, svc: svc}
}

func withQR() *gateway.CreatedInvoice {
	return &gateway.CreatedInvoice{
		InvoiceFields: gateway.InvoiceFields{
			InvoiceID: "gw-inv-1",
			QRText:    "0002010102121531279404962794049600022310027138152045734530349654031005802MN",
			QRImage:   "iVBORw0KGgo=",
			ShortURL:  "https://s.example/abc",
			DeepLinks: []gateway.DeepLink{{Name: "Bank", Link: "bank://pay?q=1"}},
		},
		Raw: []byte(`{"invoice_id":"gw-inv-1"}`),
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestCreateInvoiceValidation(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()

	_, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{ProductID: "go-101", Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
	_, err = f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
	_, err = f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Empty(t, f.gateway.created)
	assert.Zero(t, countRows(t, f.db, &domain.Invoice{}))
}

func TestHappyPathGrantsOnceAndNotifies(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()

	view, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 50000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, view.Status)
	assert.Equal(t, "gw-inv-1", view.GatewayInvoiceID)
	assert.Equal(t, "iVBORw0KGgo=", view.ScanImage)
	assert.Equal(t, "https://s.example/abc", view.DeepLink)
	assert.False(t, view.ScanUnavailable)

	require.Len(t, f.gateway.created, 1)
	sent := f.gateway.created[0]
	assert.Equal(t, int64(50000), sent.Amount)
	assert.Equal(t, "https://shop.example/checkout/callback?invoice="+sent.CorrelationID, sent.CallbackURL)

	res, err := f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Zero(t, countRows(t, f.db, &entitlementdomain.Entitlement{}))

	f.clock.Advance(6 * time.Second)
	f.gateway.paid.Store(true)
	res, err = f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, domain.StatusPaid, res.Status)

	var e entitlementdomain.Entitlement
	require.NoError(t, f.db.Where("user_id = ? AND product_id = ?", "u1", "go-101").Take(&e).Error)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 90), e.ExpiresAt.UTC())
	assert.Equal(t, int64(1), countRows(t, f.db, &notificationdomain.Notification{}))

	// Further checks neither call the gateway nor notify again.
	checks := f.gateway.checks.Load()
	res, err = f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, checks, f.gateway.checks.Load())
	assert.Equal(t, int64(1), countRows(t, f.db, &notificationdomain.Notification{}))
}

func TestCheckPaidOnPaidInvoiceSkipsGateway(t *testing.T) {
	f := newFixture(t, withQR())
	paidAt := testNow.Add(-time.Hour)
	require.NoError(t, f.db.Create(&domain.Invoice{
		ID:               42,
		OwnerID:          "u1",
		ProductID:        "go-101",
		Amount:           50000,
		CorrelationID:    "corr-42",
		GatewayInvoiceID: "gw-42",
		Status:           domain.StatusPaid,
		PaidAt:           &paidAt,
		CreatedAt:        paidAt,
		UpdatedAt:        paidAt,
	}).Error)
	require.NoError(t, f.db.Create(&entitlementdomain.Entitlement{
		UserID:          "u1",
		ProductID:       "go-101",
		PurchasedAt:     paidAt,
		DurationDays:    90,
		SourceInvoiceID: 42,
		Amount:          50000,
	}).Error)

	res, err := f.svc.CheckPaid(context.Background(), "u1", "42")
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, domain.StatusPaid, res.Status)
	assert.Zero(t, f.gateway.checks.Load())
	assert.Zero(t, countRows(t, f.db, &notificationdomain.Notification{}))
}

func TestConcurrentPaidSignalsGrantOnce(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()
	view, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 50000})
	require.NoError(t, err)
	f.gateway.paid.Store(true)

	var invoice domain.Invoice
	require.NoError(t, f.db.First(&invoice).Error)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := f.svc.HandleCallback(ctx, invoice.CorrelationID)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), countRows(t, f.db, &entitlementdomain.Entitlement{}))
	assert.Equal(t, int64(1), countRows(t, f.db, &notificationdomain.Notification{}))
	assert.Equal(t, int64(1), countRows(t, f.db, &auditdomain.AuditLog{}))
}

func TestCreateInvoiceRendersScanFromDeepLink(t *testing.T) {
	f := newFixture(t, &gateway.CreatedInvoice{
		InvoiceFields: gateway.InvoiceFields{
			InvoiceID: "gw-inv-2",
			DeepLinks: []gateway.DeepLink{{Name: "Bank", Link: "bank://pay?invoice=gw-inv-2"}},
		},
		Raw: []byte(`{"invoice_id":"gw-inv-2"}`),
	})

	view, err := f.svc.CreateInvoice(context.Background(), domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 1000})
	require.NoError(t, err)
	assert.NotEmpty(t, view.ScanImage)
	assert.Equal(t, "bank://pay?invoice=gw-inv-2", view.DeepLink)
	assert.False(t, view.ScanUnavailable)

	var stored domain.Invoice
	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, view.ScanImage, stored.QRImage)
	require.Len(t, stored.DeepLinks, 1)
}

func TestCreateInvoiceWithoutScanFieldsStillPersists(t *testing.T) {
	f := newFixture(t, &gateway.CreatedInvoice{
		InvoiceFields: gateway.InvoiceFields{InvoiceID: "gw-inv-3"},
		Raw:           []byte(`{"invoice_id":"gw-inv-3"}`),
	})

	view, err := f.svc.CreateInvoice(context.Background(), domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 1000})
	require.NoError(t, err)
	assert.True(t, view.ScanUnavailable)
	assert.Equal(t, int64(1), countRows(t, f.db, &domain.Invoice{}))
}

func TestCreateInvoiceGatewayFailureWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.gateway.createErr = errors.New("connection reset")

	_, err := f.svc.CreateInvoice(context.Background(), domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 1000})
	assert.ErrorIs(t, err, gateway.ErrGatewayInvoice)
	assert.Zero(t, countRows(t, f.db, &domain.Invoice{}))
}

func TestCheckPaidGatewayFailureLeavesInvoicePending(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()
	view, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 1000})
	require.NoError(t, err)
	f.gateway.checkErr = fmt.Errorf("%w: status 503", gateway.ErrGatewayInvoice)

	_, err = f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
	assert.ErrorIs(t, err, gateway.ErrGatewayInvoice)

	var stored domain.Invoice
	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestOwnershipIsEnforced(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()
	view, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 1000})
	require.NoError(t, err)
	f.gateway.paid.Store(true)

	_, err = f.svc.CheckPaid(ctx, "intruder", view.InvoiceID)
	assert.ErrorIs(t, err, domain.ErrInvoiceOwnership)
	_, err = f.svc.GetInvoice(ctx, "intruder", view.InvoiceID)
	assert.ErrorIs(t, err, domain.ErrInvoiceOwnership)
	_, err = f.svc.Receipt(ctx, "intruder", view.InvoiceID)
	assert.ErrorIs(t, err, domain.ErrInvoiceOwnership)
	assert.Zero(t, f.gateway.checks.Load())

	_, err = f.svc.CheckPaid(ctx, "u1", "999")
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	_, err = f.svc.CheckPaid(ctx, "u1", "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidInvoiceID)
}

func TestReceiptRequiresPaidInvoice(t *testing.T) {
	f := newFixture(t, withQR())
	ctx := context.Background()
	view, err := f.svc.CreateInvoice(ctx, domain.CreateInvoiceRequest{OwnerID: "u1", ProductID: "go-101", Amount: 50000})
	require.NoError(t, err)

	_, err = f.svc.Receipt(ctx, "u1", view.InvoiceID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotPaid)

	f.gateway.paid.Store(true)
	_, err = f.svc.CheckPaid(ctx, "u1", view.InvoiceID)
	require.NoError(t, err)

	doc, err := f.svc.Receipt(ctx, "u1", view.InvoiceID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestHandleCallbackUnknownInvoice(t *testing.T) {
	f := newFixture(t, withQR())
	_, err := f.svc.HandleCallback(context.Background(), "01UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	_, err = f.svc.HandleCallback(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInvoiceID)
}
