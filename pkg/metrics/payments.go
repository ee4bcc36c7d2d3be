package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts gateway requests and callback outcomes.
type PaymentMetrics struct {
	requests  *prometheus.CounterVec
	callbacks *prometheus.CounterVec
	forged    prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_requests_total",
		Help: "Signed gateway redirects built, by result.",
	}, []string{"result"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Gateway callbacks handled, by resulting transaction status.",
	}, []string{"status"})
	forged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_signature_mismatch_total",
		Help: "Gateway callbacks whose secure hash did not verify.",
	})
	reg.MustRegister(requests, callbacks, forged)
	return &PaymentMetrics{
		requests:  requests,
		callbacks: callbacks,
		forged:    forged,
	}
}

// IncRequest counts a redirect build attempt.
func (p *PaymentMetrics) IncRequest(result string) {
	if p == nil || p.requests == nil {
		return
	}
	p.requests.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncCallback counts a callback by the status it left the transaction in.
func (p *PaymentMetrics) IncCallback(status string) {
	if p == nil || p.callbacks == nil {
		return
	}
	p.callbacks.WithLabelValues(normalizeLabel(status)).Inc()
}

func (p *PaymentMetrics) IncSignatureMismatch() {
	if p == nil || p.forged == nil {
		return
	}
	p.forged.Inc()
}
