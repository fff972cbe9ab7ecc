package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("request_rejected")
	ErrServer       = errors.New("server_error")
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPCheckout talks to the checkout HTTP API as the signed-in payer.
type HTTPCheckout struct {
	client *resty.Client
}

func NewHTTPCheckout(baseURL, bearerToken string, timeout time.Duration) *HTTPCheckout {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(bearerToken).
		SetHeader("Content-Type", "application/json")
	return &HTTPCheckout{client: client}
}

func (h *HTTPCheckout) Create(ctx context.Context, req checkoutdomain.CreateInvoiceRequest) (*checkoutdomain.InvoiceView, error) {
	var view checkoutdomain.InvoiceView
	var failure errorBody
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&view).
		SetError(&failure).
		Post("/checkout/create")
	if err != nil {
		return nil, err
	}
	if err := classify(resp, failure); err != nil {
		return nil, err
	}
	return &view, nil
}

func (h *HTTPCheckout) Check(ctx context.Context, invoiceID string) (*checkoutdomain.CheckResult, error) {
	var result checkoutdomain.CheckResult
	var failure errorBody
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"invoiceId": invoiceID}).
		SetResult(&result).
		SetError(&failure).
		Post("/checkout/check")
	if err != nil {
		return nil, err
	}
	if err := classify(resp, failure); err != nil {
		return nil, err
	}
	return &result, nil
}

func classify(resp *resty.Response, failure errorBody) error {
	if !resp.IsError() {
		return nil
	}
	detail := failure.Error.Message
	if detail == "" {
		detail = resp.Status()
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", checkoutdomain.ErrInvoiceOwnership, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", checkoutdomain.ErrInvoiceNotFound, detail)
	case http.StatusBadRequest, http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrRejected, detail)
	default:
		return fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode(), detail)
	}
}
