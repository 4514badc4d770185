package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsAddsPerOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("confirmed", 2)
	m.Observe("confirmed", 1)
	m.Observe("rejected", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "lootbay_payments_webhook_records_total", map[string]string{"outcome": "confirmed"})
	if err != nil {
		t.Fatalf("fetch confirmed: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected confirmed=3, got %f", got)
	}
	if _, err := fetchCounterValue(mfs, "lootbay_payments_webhook_records_total", map[string]string{"outcome": "rejected"}); err == nil {
		t.Fatalf("expected no rejected series for zero observations")
	}
}

func TestCheckoutMetricsNilSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.Inc("ok")

	reg := prometheus.NewRegistry()
	m = NewCheckoutMetrics(reg)
	m.Inc("out_of_stock")
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "lootbay_checkouts_total", map[string]string{"outcome": "out_of_stock"})
	if err != nil {
		t.Fatalf("fetch out_of_stock: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected out_of_stock=1, got %f", got)
	}
}
