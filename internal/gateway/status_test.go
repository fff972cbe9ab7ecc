package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPayment(t *testing.T) {
	cases := []struct {
		name string
		body string
		paid bool
	}{
		{"status paid", `{"status":"PAID"}`, true},
		{"status lower case", `{"payment_status":"success"}`, true},
		{"invoice status settled", `{"invoice_status":"SETTLED"}`, true},
		{"paid flag", `{"paid":true}`, true},
		{"is_paid flag as string", `{"is_paid":"true"}`, true},
		{"paid amount", `{"paid_amount":500}`, true},
		{"paid amount camel", `{"paidAmount":"1200"}`, true},
		{"row paid", `{"rows":[{"status":"PAID"}]}`, true},
		{"second row paid", `{"count":2,"rows":[{"payment_status":"FAILED"},{"payment_status":"PAID"}]}`, true},
		{"nested rows", `{"data":{"rows":[{"paid":true}]}}`, true},
		{"payments list", `{"payments":[{"status":"COMPLETED"}]}`, true},
		{"pending", `{"status":"PENDING"}`, false},
		{"empty", `{}`, false},
		{"zero amount", `{"paid_amount":0,"rows":[]}`, false},
		{"paid flag false", `{"paid":false,"status":"NEW"}`, false},
		{"failed row", `{"rows":[{"status":"FAILED"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyPayment([]byte(tc.body))
			assert.Equal(t, tc.paid, got.Paid)
			if tc.paid {
				assert.Equal(t, StatusPaid, got.Status)
			} else {
				assert.Equal(t, StatusPending, got.Status)
			}
		})
	}
}
