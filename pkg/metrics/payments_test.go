package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncRequest("ok")
	m.IncRequest("ok")
	m.IncCallback("success")
	m.IncCallback("")
	m.IncSignatureMismatch()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "payment_requests_total", "result", "ok"); err != nil || got != 2 {
		t.Fatalf("expected 2 ok requests, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "payment_callbacks_total", "status", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty status normalized to unknown, got %f err=%v", got, err)
	}
	mf := findMetricFamily(mfs, "payment_signature_mismatch_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one signature mismatch")
	}
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.IncRequest("ok")
	m.IncCallback("failed")
	m.IncSignatureMismatch()
}
