package gateway

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	StatusPaid    = "PAID"
	StatusPending = "PENDING"
)

var (
	paidStatuses = map[string]struct{}{
		"PAID":      {},
		"SUCCESS":   {},
		"COMPLETED": {},
		"SETTLED":   {},
	}
	statusKeys     = []string{"status", "payment_status", "invoice_status"}
	paidFlagKeys   = []string{"paid", "is_paid"}
	paidAmountKeys = []string{"paid_amount", "paidAmount", "amount_paid"}
	rowListKeys    = []string{"rows", "payments", "data.rows"}
)

// PaymentCheck is the normalised answer of the payment check endpoint.
type PaymentCheck struct {
	Paid   bool
	Status string
}

// ClassifyPayment treats the response as paid when any known signal says
// so: a paid status string, a true paid flag, a positive paid amount, or
// at least one payment row with a paid status or flag. Everything else is
// pending.
func ClassifyPayment(raw []byte) PaymentCheck {
	root := gjson.ParseBytes(raw)
	if reportsPaid(root) || hasPaidAmount(root) || anyRowPaid(root) {
		return PaymentCheck{Paid: true, Status: StatusPaid}
	}
	return PaymentCheck{Paid: false, Status: StatusPending}
}

func reportsPaid(obj gjson.Result) bool {
	for _, key := range statusKeys {
		value := obj.Get(key)
		if value.Type != gjson.String {
			continue
		}
		if _, ok := paidStatuses[strings.ToUpper(strings.TrimSpace(value.String()))]; ok {
			return true
		}
	}
	for _, key := range paidFlagKeys {
		value := obj.Get(key)
		if value.Type == gjson.True {
			return true
		}
		if value.Type == gjson.String && strings.EqualFold(strings.TrimSpace(value.String()), "true") {
			return true
		}
	}
	return false
}

func hasPaidAmount(obj gjson.Result) bool {
	for _, key := range paidAmountKeys {
		value := obj.Get(key)
		if (value.Type == gjson.Number || value.Type == gjson.String) && value.Float() > 0 {
			return true
		}
	}
	return false
}

func anyRowPaid(root gjson.Result) bool {
	for _, key := range rowListKeys {
		rows := root.Get(key)
		if !rows.IsArray() {
			continue
		}
		for _, row := range rows.Array() {
			if reportsPaid(row) {
				return true
			}
		}
	}
	return false
}
