package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the relay from outbox rows to the domain topic.
type OutboxMetrics struct {
	published    prometheus.Counter
	retried      prometheus.Counter
	deadLettered *prometheus.CounterVec
	lag          prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows published to the bus.",
	})
	retried := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_retries_total",
		Help: "Publish failures left for a later attempt.",
	})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox rows moved to the DLQ by reason.",
	}, []string{"reason"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_publish_lag_seconds",
		Help:    "Time between an outbox row being queued and published.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	reg.MustRegister(published, retried, deadLettered, lag)
	return &OutboxMetrics{
		published:    published,
		retried:      retried,
		deadLettered: deadLettered,
		lag:          lag,
	}
}

// ObservePublished counts a published row and the time it waited in the outbox.
func (m *OutboxMetrics) ObservePublished(queuedAt time.Time) {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
	if !queuedAt.IsZero() {
		m.lag.Observe(time.Since(queuedAt).Seconds())
	}
}

func (m *OutboxMetrics) IncRetry() {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.Inc()
}

func (m *OutboxMetrics) IncDeadLettered(reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
}
