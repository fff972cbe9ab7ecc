package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestHTTPCheckoutRoundTrip(t *testing.T) {
	checks := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/checkout/create":
			var req checkoutdomain.CreateInvoiceRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "go-101", req.ProductID)
			writeJSON(w, http.StatusOK, checkoutdomain.InvoiceView{InvoiceID: "77", Amount: req.Amount, Status: checkoutdomain.StatusPending})
		case "/checkout/check":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "77", body["invoiceId"])
			checks++
			writeJSON(w, http.StatusOK, checkoutdomain.CheckResult{Paid: checks > 1, Status: checkoutdomain.StatusPending})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPCheckout(srv.URL+"/", "tok", time.Second)
	view, err := client.Create(context.Background(), checkoutdomain.CreateInvoiceRequest{ProductID: "go-101", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, "77", view.InvoiceID)
	assert.Equal(t, int64(100), view.Amount)

	res, err := client.Check(context.Background(), "77")
	require.NoError(t, err)
	assert.False(t, res.Paid)

	res, err = client.Check(context.Background(), "77")
	require.NoError(t, err)
	assert.True(t, res.Paid)
}

func TestHTTPCheckoutMapsErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, checkoutdomain.ErrInvoiceOwnership},
		{http.StatusNotFound, checkoutdomain.ErrInvoiceNotFound},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusTooManyRequests, ErrServer},
		{http.StatusBadGateway, ErrServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]any{"error": map[string]string{"type": "x", "message": "nope"}})
			}))
			defer srv.Close()

			_, err := NewHTTPCheckout(srv.URL, "tok", time.Second).Check(context.Background(), "1")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
