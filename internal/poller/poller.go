// Package poller drives a purchase from the payer's side: it creates the
// invoice, then asks the server whether it is paid on a fixed interval until
// it is, the wait budget runs out, or the caller goes away.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle            State = "IDLE"
	StateCreating        State = "CREATING"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StatePaid            State = "PAID"
	StateTimedOut        State = "TIMED_OUT"
	StateError           State = "ERROR"
)

// Terminal reports whether the poller stops in this state.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateTimedOut || s == StateError
}

var (
	ErrCreateFailed   = errors.New("create_failed")
	ErrTooManyErrors  = errors.New("too_many_check_errors")
	ErrAlreadyStarted = errors.New("poller_already_started")
)

// Checkout is the server the poller talks to.
type Checkout interface {
	Create(ctx context.Context, req checkoutdomain.CreateInvoiceRequest) (*checkoutdomain.InvoiceView, error)
	Check(ctx context.Context, invoiceID string) (*checkoutdomain.CheckResult, error)
}

// Progress is what OnState receives on every transition.
type Progress struct {
	State   State
	Invoice *checkoutdomain.InvoiceView
	Checks  int
	Elapsed time.Duration
	Err     error
}

type Options struct {
	Interval  time.Duration
	Budget    time.Duration
	MaxErrors int
	OnState   func(Progress)
}

// OptionsFrom takes the poll tunables from the checkout config.
func OptionsFrom(cfg config.CheckoutConfig) Options {
	return Options{
		Interval:  cfg.PollInterval,
		Budget:    cfg.PollBudget,
		MaxErrors: cfg.PollMaxErrors,
	}
}

// Outcome is the final state of one run.
type Outcome struct {
	State   State
	Invoice *checkoutdomain.InvoiceView
	Checks  int
	Elapsed time.Duration
}

type Poller struct {
	backend   Checkout
	clock     clock.Clock
	newTicker TickerFunc
	log       *zap.Logger
	opts      Options

	mu    sync.Mutex
	state State
	ran   bool
}

func New(backend Checkout, clk clock.Clock, log *zap.Logger, opts Options) *Poller {
	defaults := config.DefaultCheckoutConfig()
	if opts.Interval <= 0 {
		opts.Interval = defaults.PollInterval
	}
	if opts.Budget <= 0 {
		opts.Budget = defaults.PollBudget
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = defaults.PollMaxErrors
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		backend:   backend,
		clock:     clk,
		newTicker: NewTimeTicker,
		log:       log.Named("poller"),
		opts:      opts,
		state:     StateIdle,
	}
}

// WithTicker replaces the interval source.
func (p *Poller) WithTicker(fn TickerFunc) *Poller {
	p.newTicker = fn
	return p
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes one purchase. A Poller runs once. PAID and TIMED_OUT return a
// nil error; ERROR returns the cause. When ctx ends first the state stays
// where it was and ctx.Err() is returned; the interval timer is stopped on
// every path.
func (p *Poller) Run(ctx context.Context, req checkoutdomain.CreateInvoiceRequest) (*Outcome, error) {
	p.mu.Lock()
	if p.ran {
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	p.ran = true
	p.mu.Unlock()

	out := &Outcome{State: StateIdle}
	started := p.clock.Now()

	p.transition(out, StateCreating, started, nil)
	invoice, err := p.backend.Create(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		err = fmt.Errorf("%w: %w", ErrCreateFailed, err)
		p.transition(out, StateError, started, err)
		return out, err
	}
	out.Invoice = invoice

	if invoice.Status == checkoutdomain.StatusPaid {
		p.transition(out, StatePaid, started, nil)
		return out, nil
	}
	p.transition(out, StateAwaitingPayment, started, nil)

	ticker := p.newTicker(p.opts.Interval)
	defer ticker.Stop()

	waitStart := p.clock.Now()
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poll cancelled", zap.String("invoice_id", invoice.InvoiceID), zap.Int("checks", out.Checks))
			return out, ctx.Err()
		case <-ticker.C():
		}

		out.Checks++
		res, err := p.backend.Check(ctx, invoice.InvoiceID)
		switch {
		case err != nil && ctx.Err() != nil:
			return out, ctx.Err()
		case err != nil && fatal(err):
			p.transition(out, StateError, started, err)
			return out, err
		case err != nil:
			consecutive++
			p.log.Debug("payment check failed", zap.String("invoice_id", invoice.InvoiceID), zap.Int("consecutive", consecutive), zap.Error(err))
			if consecutive >= p.opts.MaxErrors {
				err = fmt.Errorf("%w: %w", ErrTooManyErrors, err)
				p.transition(out, StateError, started, err)
				return out, err
			}
		case res.Paid:
			out.Invoice.Status = checkoutdomain.StatusPaid
			p.transition(out, StatePaid, started, nil)
			return out, nil
		case res.Status.Terminal():
			out.Invoice.Status = res.Status
			err := fmt.Errorf("invoice is %s", res.Status)
			p.transition(out, StateError, started, err)
			return out, err
		default:
			consecutive = 0
		}

		if p.clock.Now().Sub(waitStart) >= p.opts.Budget {
			p.transition(out, StateTimedOut, started, nil)
			return out, nil
		}
	}
}

func (p *Poller) transition(out *Outcome, next State, started time.Time, err error) {
	p.mu.Lock()
	p.state = next
	p.mu.Unlock()

	out.State = next
	out.Elapsed = p.clock.Now().Sub(started)
	if p.opts.OnState != nil {
		p.opts.OnState(Progress{
			State:   next,
			Invoice: out.Invoice,
			Checks:  out.Checks,
			Elapsed: out.Elapsed,
			Err:     err,
		})
	}
}

// fatal errors cannot improve by asking again.
func fatal(err error) bool {
	return errors.Is(err, checkoutdomain.ErrInvoiceOwnership) ||
		errors.Is(err, checkoutdomain.ErrInvoiceNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRejected)
}
