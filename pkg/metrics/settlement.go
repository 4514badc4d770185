package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts payment webhook records by outcome.
type WebhookMetrics struct {
	records *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on reg.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhook_records_total",
		Help:      "Payment webhook records handled, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(records)
	return &WebhookMetrics{records: records}
}

// Observe adds n records with the given outcome.
func (w *WebhookMetrics) Observe(outcome string, n int) {
	if w == nil || w.records == nil || n <= 0 {
		return
	}
	w.records.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

// CheckoutMetrics counts checkout attempts by outcome.
type CheckoutMetrics struct {
	checkouts *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout counter on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(checkouts)
	return &CheckoutMetrics{checkouts: checkouts}
}

// Inc records one checkout with the given outcome.
func (c *CheckoutMetrics) Inc(outcome string) {
	if c == nil || c.checkouts == nil {
		return
	}
	c.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}
