package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type consumerStub struct {
	run func(ctx context.Context) error
}

func (c consumerStub) Run(ctx context.Context) error { return c.run(ctx) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestNewServiceValidatesParams(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger(), DB: pingStub{}}); err == nil {
		t.Fatal("expected missing pubsub error")
	}
}

func TestRunFailsWhenDependencyUnavailable(t *testing.T) {
	consumerCalled := false
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     pingStub{},
		PubSub: pingStub{err: errors.New("no route")},
		Consumer: consumerStub{run: func(ctx context.Context) error {
			consumerCalled = true
			return nil
		}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if consumerCalled {
		t.Fatal("consumer must not start before dependencies are ready")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		DB:       pingStub{},
		PubSub:   pingStub{},
		Consumer: consumerStub{run: func(ctx context.Context) error { return boom }},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		DB:     pingStub{},
		PubSub: pingStub{},
		Consumer: consumerStub{run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
