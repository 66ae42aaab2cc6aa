package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReplayMetrics counts replay runs and per-event outcomes.
type ReplayMetrics struct {
	runs   *prometheus.CounterVec
	events *prometheus.CounterVec
}

// NewReplayMetrics registers replay metrics on the provided registerer.
func NewReplayMetrics(reg prometheus.Registerer) *ReplayMetrics {
	if reg == nil {
		return &ReplayMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_runs_total",
		Help: "Replay invocations by scope and mode.",
	}, []string{"scope", "mode"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_events_total",
		Help: "Replayed events by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(runs, events)
	return &ReplayMetrics{runs: runs, events: events}
}

func (m *ReplayMetrics) IncRun(scope string, dryRun bool) {
	if m == nil || m.runs == nil {
		return
	}
	mode := "live"
	if dryRun {
		mode = "dry_run"
	}
	m.runs.WithLabelValues(normalizeLabel(scope), mode).Inc()
}

func (m *ReplayMetrics) AddEvents(outcome string, n int) {
	if m == nil || m.events == nil || n <= 0 {
		return
	}
	m.events.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}
