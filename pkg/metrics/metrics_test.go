package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.AddRowsDeleted(job, 3)
	metrics.AddRowsDeleted(job, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_rows_deleted_total", "job", job); err != nil {
		t.Fatalf("fetch rows: %v", err)
	} else if got != 3 {
		t.Fatalf("expected rows=3, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func TestCoordinatorMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoordinatorMetrics(reg)
	m.IncOutcome("EVENT", "executed")
	m.IncOutcome("EVENT", "duplicate")
	m.IncOutcome("EVENT", "duplicate")
	m.IncHandlerFailure("API")
	m.ObserveHandler("EVENT", 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_handler_failures_total", "class", "API"); err != nil || got != 1 {
		t.Fatalf("expected one API failure, got %f (%v)", got, err)
	}
	mf := findMetricFamily(mfs, "ledger_claims_total")
	if mf == nil {
		t.Fatal("ledger_claims_total not exported")
	}
	var duplicates float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", "duplicate") {
			duplicates += metric.GetCounter().GetValue()
		}
	}
	if duplicates != 2 {
		t.Fatalf("expected 2 duplicates, got %f", duplicates)
	}
}

func TestReplayMetricsSplitsModes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReplayMetrics(reg)
	m.IncRun("all", true)
	m.IncRun("all", false)
	m.AddEvents("success", 4)
	m.AddEvents("failure", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "replay_runs_total", "mode", "dry_run"); err != nil || got != 1 {
		t.Fatalf("expected one dry run, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "replay_events_total", "outcome", "success"); err != nil || got != 4 {
		t.Fatalf("expected 4 successes, got %f (%v)", got, err)
	}
}

func TestOutboxMetricsCountsPublishAndDeadLetters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObservePublished(time.Now().Add(-time.Second))
	m.IncRetry()
	m.IncDeadLettered("max_attempts")
	m.IncDeadLettered("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", "reason", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected one unlabeled dead letter, got %f (%v)", got, err)
	}
	if mf := findMetricFamily(mfs, "outbox_published_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one published row")
	}
	if mf := findMetricFamily(mfs, "outbox_publish_lag_seconds"); mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() < 1 {
		t.Fatal("expected publish lag of at least one second")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var c *CronJobMetrics
	c.IncSuccess("x")
	var co *CoordinatorMetrics
	co.IncOutcome("API", "executed")
	NewReplayMetrics(nil).IncRun("all", true)
	var o *OutboxMetrics
	o.ObservePublished(time.Now())
	NewOutboxMetrics(nil).IncDeadLettered("x")
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
