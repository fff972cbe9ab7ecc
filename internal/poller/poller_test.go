package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTicker fires whenever read when ready is closed, never otherwise.
type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newFakeTicker(ready bool) *fakeTicker {
	t := &fakeTicker{ch: make(chan time.Time)}
	if ready {
		close(t.ch)
	}
	return t
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// scriptedCheckout advances the clock by one interval per check.
type scriptedCheckout struct {
	clock     *clock.FakeClock
	interval  time.Duration
	createErr error
	results   func(n int) (*checkoutdomain.CheckResult, error)
	checks    int
}

func (s *scriptedCheckout) Create(ctx context.Context, req checkoutdomain.CreateInvoiceRequest) (*checkoutdomain.InvoiceView, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &checkoutdomain.InvoiceView{InvoiceID: "101", ProductID: req.ProductID, Amount: req.Amount, Status: checkoutdomain.StatusPending}, nil
}

func (s *scriptedCheckout) Check(ctx context.Context, invoiceID string) (*checkoutdomain.CheckResult, error) {
	s.checks++
	s.clock.Advance(s.interval)
	return s.results(s.checks)
}

func pending() (*checkoutdomain.CheckResult, error) {
	return &checkoutdomain.CheckResult{Status: checkoutdomain.StatusPending}, nil
}

type harness struct {
	backend *scriptedCheckout
	ticker  *fakeTicker
	states  []State
	poller  *Poller
}

func newHarness(ready bool, results func(n int) (*checkoutdomain.CheckResult, error)) *harness {
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		backend: &scriptedCheckout{clock: clk, interval: 3 * time.Second, results: results},
		ticker:  newFakeTicker(ready),
	}
	h.poller = New(h.backend, clk, zap.NewNop(), Options{
		Interval:  3 * time.Second,
		Budget:    2 * time.Minute,
		MaxErrors: 10,
		OnState:   func(p Progress) { h.states = append(h.states, p.State) },
	}).WithTicker(func(time.Duration) Ticker { return h.ticker })
	return h
}

var purchase = checkoutdomain.CreateInvoiceRequest{ProductID: "go-101", Amount: 50000}

func TestRunReachesPaid(t *testing.T) {
	h := newHarness(true, func(n int) (*checkoutdomain.CheckResult, error) {
		if n == 3 {
			return &checkoutdomain.CheckResult{Paid: true, Status: checkoutdomain.StatusPaid}, nil
		}
		return pending()
	})

	out, err := h.poller.Run(context.Background(), purchase)
	require.NoError(t, err)
	assert.Equal(t, StatePaid, out.State)
	assert.Equal(t, 3, out.Checks)
	assert.Equal(t, checkoutdomain.StatusPaid, out.Invoice.Status)
	assert.Equal(t, []State{StateCreating, StateAwaitingPayment, StatePaid}, h.states)
	assert.True(t, h.ticker.Stopped())
	assert.Equal(t, StatePaid, h.poller.State())
}

func TestRunTimesOut(t *testing.T) {
	h := newHarness(true, func(int) (*checkoutdomain.CheckResult, error) { return pending() })

	out, err := h.poller.Run(context.Background(), purchase)
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, out.State)
	assert.Equal(t, 40, out.Checks)
	assert.True(t, h.ticker.Stopped())
}

func TestRunToleratesTransientErrors(t *testing.T) {
	h := newHarness(true, func(n int) (*checkoutdomain.CheckResult, error) {
		switch {
		case n == 12:
			return &checkoutdomain.CheckResult{Paid: true, Status: checkoutdomain.StatusPaid}, nil
		case n%2 == 0:
			return pending()
		default:
			return nil, ErrServer
		}
	})

	out, err := h.poller.Run(context.Background(), purchase)
	require.NoError(t, err)
	assert.Equal(t, StatePaid, out.State)
}

func TestRunStopsAfterRepeatedErrors(t *testing.T) {
	h := newHarness(true, func(int) (*checkoutdomain.CheckResult, error) { return nil, ErrServer })

	out, err := h.poller.Run(context.Background(), purchase)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, StateError, out.State)
	assert.Equal(t, 10, out.Checks)
	assert.True(t, h.ticker.Stopped())
}

func TestRunStopsOnOwnershipError(t *testing.T) {
	h := newHarness(true, func(int) (*checkoutdomain.CheckResult, error) {
		return nil, checkoutdomain.ErrInvoiceOwnership
	})

	out, err := h.poller.Run(context.Background(), purchase)
	assert.ErrorIs(t, err, checkoutdomain.ErrInvoiceOwnership)
	assert.Equal(t, StateError, out.State)
	assert.Equal(t, 1, out.Checks)
}

func TestRunCreateFailure(t *testing.T) {
	h := newHarness(true, func(int) (*checkoutdomain.CheckResult, error) { return pending() })
	h.backend.createErr = errors.New("boom")
	tickerCreated := false
	h.poller.WithTicker(func(time.Duration) Ticker {
		tickerCreated = true
		return h.ticker
	})

	out, err := h.poller.Run(context.Background(), purchase)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Equal(t, StateError, out.State)
	assert.Equal(t, []State{StateCreating, StateError}, h.states)
	assert.False(t, tickerCreated)
	assert.Zero(t, h.backend.checks)
}

func TestRunCancellationStopsTicker(t *testing.T) {
	h := newHarness(false, func(int) (*checkoutdomain.CheckResult, error) { return pending() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.poller.opts.OnState = func(p Progress) {
		h.states = append(h.states, p.State)
		if p.State == StateAwaitingPayment {
			cancel()
		}
	}

	out, err := h.poller.Run(ctx, purchase)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAwaitingPayment, out.State)
	assert.Equal(t, StateAwaitingPayment, h.poller.State())
	assert.Zero(t, out.Checks)
	assert.True(t, h.ticker.Stopped())
}

func TestRunOnlyOnce(t *testing.T) {
	h := newHarness(true, func(int) (*checkoutdomain.CheckResult, error) {
		return &checkoutdomain.CheckResult{Paid: true, Status: checkoutdomain.StatusPaid}, nil
	})
	_, err := h.poller.Run(context.Background(), purchase)
	require.NoError(t, err)

	_, err = h.poller.Run(context.Background(), purchase)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}
