package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox/registry"
)

func newTestHandler(t *testing.T, repo Repository) *Handler {
	t.Helper()
	h, err := NewHandler(repo, registry.NewFeatureDecoders(), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func storedEvent(id string, eventType enums.EventType, payload string) models.StoredEvent {
	return models.StoredEvent{
		EventID:       id,
		EventType:     eventType,
		AggregateID:   "FT-1",
		AggregateType: enums.AggregateFeature,
		Payload:       json.RawMessage(payload),
		OccurredAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       1,
	}
}

func TestHandlerCreatesOneNotificationPerEventType(t *testing.T) {
	cases := []struct {
		event    models.StoredEvent
		wantType enums.NotificationType
		contains string
	}{
		{storedEvent("e1", enums.EventFeatureCreated, `{"code":"FT-1","title":"Dark mode","product_code":"APP"}`), enums.NotificationTypeFeatureCreated, "Dark mode"},
		{storedEvent("e2", enums.EventFeatureUpdated, `{"code":"FT-1","changed":["title","status"]}`), enums.NotificationTypeFeatureUpdated, "title, status"},
		{storedEvent("e3", enums.EventFeatureDeleted, `{"code":"FT-1","deleted_at":"2026-01-01T00:00:00Z"}`), enums.NotificationTypeFeatureDeleted, "deleted"},
	}

	for _, tc := range cases {
		t.Run(string(tc.event.EventType), func(t *testing.T) {
			repo := &fakeRepository{}
			h := newTestHandler(t, repo)

			result, err := h.Handle(context.Background(), nil, tc.event)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if result != enums.ResultOK {
				t.Fatalf("unexpected result %q", result)
			}
			if len(repo.created) != 1 {
				t.Fatalf("expected one notification, got %d", len(repo.created))
			}
			n := repo.created[0]
			if n.Type != tc.wantType || n.EventID != tc.event.EventID || n.FeatureCode != "FT-1" {
				t.Fatalf("unexpected notification %+v", n)
			}
			if !strings.Contains(n.Message, tc.contains) {
				t.Fatalf("message %q missing %q", n.Message, tc.contains)
			}
		})
	}
}

func TestHandlerRejectsUnknownAndMalformedEvents(t *testing.T) {
	repo := &fakeRepository{}
	h := newTestHandler(t, repo)

	other := storedEvent("e3", enums.EventFeatureCreated, `{}`)
	other.AggregateType = enums.AggregateType("Product")
	cases := map[string]models.StoredEvent{
		"unknown type":      storedEvent("e1", enums.EventType("FeatureArchived"), `{}`),
		"malformed payload": storedEvent("e2", enums.EventFeatureCreated, `{"title":`),
		"non-object data":   storedEvent("e4", enums.EventFeatureCreated, `"not-an-object"`),
		"foreign aggregate": other,
	}
	for name, event := range cases {
		_, err := h.Handle(context.Background(), nil, event)
		if err == nil {
			t.Fatalf("%s: expected failure", name)
		}
		if pkgerrors.IsRetryable(err) {
			t.Fatalf("%s: expected non-retryable error, got %v", name, err)
		}
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notifications, got %d", len(repo.created))
	}
}

func TestHandlerSurfacesStorageErrors(t *testing.T) {
	boom := errors.New("insert failed")
	h := newTestHandler(t, &fakeRepository{createErr: boom})
	_, err := h.Handle(context.Background(), nil, storedEvent("e1", enums.EventFeatureDeleted, `{"code":"FT-1"}`))
	if !errors.Is(err, boom) || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable storage error, got %v", err)
	}
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHandler(nil, registry.NewFeatureDecoders(), nil); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewHandler(&fakeRepository{}, nil, nil); err == nil {
		t.Fatal("expected error without decoders")
	}
}
