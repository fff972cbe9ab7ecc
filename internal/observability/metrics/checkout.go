package metrics

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics are the business counters scraped from /metrics.
type CheckoutMetrics struct {
	invoicesCreated    *prometheus.CounterVec
	paymentChecks      *prometheus.CounterVec
	entitlementsGrant  prometheus.Counter
	notificationsSent  *prometheus.CounterVec
	tokenRefreshes     *prometheus.CounterVec
	partialDeliveries  prometheus.Counter
	rateLimitRejection prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer, cfg Config) *CheckoutMetrics {
	labels := prometheus.Labels{}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		labels["env"] = env
	}

	m := &CheckoutMetrics{
		invoicesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "coursepay_invoices_created_total",
			Help:        "Invoices created against the gateway, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		paymentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "coursepay_payment_checks_total",
			Help:        "Payment status checks, by resulting status.",
			ConstLabels: labels,
		}, []string{"status"}),
		entitlementsGrant: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "coursepay_entitlements_granted_total",
			Help:        "Entitlements granted by a pending to paid transition.",
			ConstLabels: labels,
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "coursepay_notifications_total",
			Help:        "Notification writes, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "coursepay_gateway_token_refreshes_total",
			Help:        "Gateway access token refreshes, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		partialDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "coursepay_notification_partial_deliveries_total",
			Help:        "Fan-outs that finished with at least one failed recipient.",
			ConstLabels: labels,
		}),
		rateLimitRejection: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "coursepay_checkout_rate_limited_total",
			Help:        "Checkout create calls rejected by the rate limiter.",
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.invoicesCreated, m.paymentChecks, m.entitlementsGrant, m.notificationsSent,
			m.tokenRefreshes, m.partialDeliveries, m.rateLimitRejection,
		} {
			if err := reg.Register(c); err != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(err, &already) {
					panic(err)
				}
			}
		}
	}
	return m
}

func (m *CheckoutMetrics) InvoiceCreated(outcome string) {
	if m == nil {
		return
	}
	m.invoicesCreated.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) PaymentChecked(status string) {
	if m == nil {
		return
	}
	m.paymentChecks.WithLabelValues(strings.ToUpper(status)).Inc()
}

func (m *CheckoutMetrics) EntitlementGranted() {
	if m == nil {
		return
	}
	m.entitlementsGrant.Inc()
}

func (m *CheckoutMetrics) NotificationsWritten(succeeded, failed int) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues("success").Add(float64(succeeded))
	m.notificationsSent.WithLabelValues("failure").Add(float64(failed))
}

func (m *CheckoutMetrics) PartialDelivery() {
	if m == nil {
		return
	}
	m.partialDeliveries.Inc()
}

func (m *CheckoutMetrics) TokenRefreshed(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *CheckoutMetrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitRejection.Inc()
}
