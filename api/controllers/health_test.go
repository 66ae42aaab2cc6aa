package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthLive(testConfig())(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get(envHeader) != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReadyAllHealthy(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	HealthReady(testConfig(), testLogger(),
		ReadinessCheck{Name: "db", Pinger: ok},
		ReadinessCheck{Name: "redis", Pinger: nil},
	)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeData(t, rec, &body)
	if body.Status != "ready" || body.Checks["db"] != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}
	if _, present := body.Checks["redis"]; present {
		t.Fatal("unconfigured dependency should be skipped")
	}
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthReady(testConfig(), testLogger(),
		ReadinessCheck{Name: "db", Pinger: pingerFunc(func(context.Context) error { return nil })},
		ReadinessCheck{Name: "pubsub", Pinger: pingerFunc(func(context.Context) error { return errors.New("unreachable") })},
	)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "DEPENDENCY_ERROR" {
		t.Fatalf("unexpected code %s", code)
	}
}
