package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoordinatorMetrics records claim outcomes and handler latency.
type CoordinatorMetrics struct {
	claims   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCoordinatorMetrics registers coordinator metrics on the provided registerer.
func NewCoordinatorMetrics(reg prometheus.Registerer) *CoordinatorMetrics {
	if reg == nil {
		return &CoordinatorMetrics{}
	}
	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_claims_total",
		Help: "Coordinator outcomes by operation class.",
	}, []string{"class", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_handler_failures_total",
		Help: "Handler failures that released their claim.",
	}, []string{"class"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_handler_duration_seconds",
		Help:    "Duration of claimed handler executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})
	reg.MustRegister(claims, failures, duration)
	return &CoordinatorMetrics{claims: claims, failures: failures, duration: duration}
}

// IncOutcome counts a resolved operation (executed, duplicate, in_flight, error).
func (m *CoordinatorMetrics) IncOutcome(class, outcome string) {
	if m == nil || m.claims == nil {
		return
	}
	m.claims.WithLabelValues(normalizeLabel(class), normalizeLabel(outcome)).Inc()
}

// IncHandlerFailure counts a handler error.
func (m *CoordinatorMetrics) IncHandlerFailure(class string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(class)).Inc()
}

// ObserveHandler records how long a claimed handler ran.
func (m *CoordinatorMetrics) ObserveHandler(class string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(class)).Observe(d.Seconds())
}
