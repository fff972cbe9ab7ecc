package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/tidwall/gjson"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	tokenPath   = "/auth/token"
	invoicePath = "/invoice"
	checkPath   = "/payment/check"

	// Values at or above this are absolute unix seconds rather than a TTL.
	unixEpochThreshold = 1_000_000_000
)

type Params struct {
	fx.In

	Config          config.Config
	Clock           clock.Clock
	Log             *zap.Logger
	GatewayMetrics  *metrics.GatewayMetrics  `optional:"true"`
	CheckoutMetrics *metrics.CheckoutMetrics `optional:"true"`
}

// Client talks to the payment gateway. Every call carries a bearer token
// from the shared TokenCache and is retried once with a fresh token after
// a 401.
type Client struct {
	http    *resty.Client
	cfg     config.GatewayConfig
	tokens  *TokenCache
	clock   clock.Clock
	metrics *metrics.GatewayMetrics
	log     *zap.Logger
}

func NewClient(p Params) *Client {
	timeout := p.Config.Gateway.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(p.Config.Gateway.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	c := &Client{
		http:    httpClient,
		cfg:     p.Config.Gateway,
		clock:   p.Clock,
		metrics: p.GatewayMetrics,
		log:     p.Log.Named("gateway.client"),
	}
	c.tokens = NewTokenCache(c, p.Clock, p.Log, p.CheckoutMetrics)
	return c
}

func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// FetchToken authenticates with client credentials. It implements
// TokenSource and bypasses the cache.
func (c *Client) FetchToken(ctx context.Context) (Token, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret).
		Post(tokenPath)
	if err != nil {
		c.metrics.Observe(ctx, "auth", "transport_error", time.Since(start))
		return Token{}, err
	}
	if resp.IsError() {
		c.metrics.Observe(ctx, "auth", "http_error", time.Since(start))
		return Token{}, fmt.Errorf("token endpoint status %d", resp.StatusCode())
	}
	c.metrics.Observe(ctx, "auth", "success", time.Since(start))

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return Token{}, errors.New("token endpoint returned invalid json")
	}
	root := gjson.ParseBytes(body)
	token := Token{AccessToken: firstString(root, []string{"access_token", "accessToken", "token"})}

	if v := root.Get("expires_in"); v.Exists() {
		token.TTL = c.ttlFrom(v.Int())
	} else if v := root.Get("expires_at"); v.Exists() {
		token.TTL = c.ttlFrom(v.Int())
	}
	return token, nil
}

func (c *Client) ttlFrom(value int64) time.Duration {
	if value >= unixEpochThreshold {
		return time.Unix(value, 0).Sub(c.clock.Now())
	}
	return time.Duration(value) * time.Second
}

// CreateInvoiceInput is what the gateway needs to open an invoice.
type CreateInvoiceInput struct {
	CorrelationID string
	ReceiverCode  string
	Description   string
	Amount        int64
	CallbackURL   string
}

type CreatedInvoice struct {
	InvoiceFields
	Raw json.RawMessage
}

func (c *Client) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*CreatedInvoice, error) {
	body := map[string]any{
		"invoice_code":          c.cfg.InvoiceCode,
		"sender_invoice_no":     in.CorrelationID,
		"invoice_receiver_code": in.ReceiverCode,
		"invoice_description":   in.Description,
		"amount":                in.Amount,
		"callback_url":          in.CallbackURL,
	}
	raw, err := c.post(ctx, "create_invoice", invoicePath, body)
	if err != nil {
		return nil, err
	}

	fields := ExtractInvoiceFields(raw)
	if fields.InvoiceID == "" {
		return nil, fmt.Errorf("%w: response has no invoice id", ErrGatewayInvoice)
	}
	return &CreatedInvoice{InvoiceFields: fields, Raw: json.RawMessage(raw)}, nil
}

func (c *Client) CheckPayment(ctx context.Context, gatewayInvoiceID string) (PaymentCheck, error) {
	body := map[string]any{
		"object_type": "INVOICE",
		"object_id":   gatewayInvoiceID,
		"offset":      map[string]int{"page_number": 1, "page_limit": 100},
	}
	raw, err := c.post(ctx, "check_payment", checkPath, body)
	if err != nil {
		return PaymentCheck{}, err
	}
	return ClassifyPayment(raw), nil
}

func (c *Client) post(ctx context.Context, operation, path string, body any) ([]byte, error) {
	start := time.Now()
	raw, err := c.postOnce(ctx, path, body)
	if errors.Is(err, errUnauthorized) {
		c.log.Info("gateway rejected token, retrying with a fresh one", zap.String("operation", operation))
		c.tokens.Invalidate()
		raw, err = c.postOnce(ctx, path, body)
		if errors.Is(err, errUnauthorized) {
			err = fmt.Errorf("%w: token rejected twice", ErrGatewayAuth)
		}
	}

	outcome := "success"
	switch {
	case errors.Is(err, ErrGatewayAuth):
		outcome = "auth_error"
	case err != nil:
		outcome = "error"
	}
	c.metrics.Observe(ctx, operation, outcome, time.Since(start))
	return raw, err
}

func (c *Client) postOnce(ctx context.Context, path string, body any) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayInvoice, path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, errUnauthorized
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrGatewayInvoice, path, resp.StatusCode())
	}

	raw := resp.Body()
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: %s: invalid json", ErrGatewayInvoice, path)
	}
	return raw, nil
}
