package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

type DomainEvent struct {
	EventType   enums.EventType
	AggregateID string
	Metadata    *EventMetadata
	Data        interface{}
	OccurredAt  time.Time
}

// EventAppender writes a stored event inside tx, assigning its version.
type EventAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, event *models.StoredEvent) error
}

// Service records domain events. Emit appends to the event store and queues
// the publish row inside the caller's transaction, so both commit or neither.
type Service struct {
	repo   *Repository
	events EventAppender
	logg   *logger.Logger
}

func NewService(repo *Repository, events EventAppender, logg *logger.Logger) *Service {
	return &Service{repo: repo, events: events, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (*models.StoredEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	aggregate, ok := event.EventType.Aggregate()
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", event.EventType)
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	stored := models.StoredEvent{
		EventID:       uuid.NewString(),
		EventType:     event.EventType,
		AggregateID:   event.AggregateID,
		AggregateType: aggregate,
		Payload:       payload,
		OccurredAt:    event.OccurredAt,
	}
	if event.Metadata != nil {
		meta, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, err
		}
		stored.Metadata = meta
	}
	if err := s.events.AppendTx(ctx, tx, &stored); err != nil {
		return nil, err
	}

	envelope, err := NewEnvelope(stored)
	if err != nil {
		return nil, err
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	row := models.OutboxEvent{
		EventID:       stored.EventID,
		EventType:     stored.EventType,
		AggregateType: stored.AggregateType,
		AggregateID:   stored.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return nil, err
	}
	if s.logg != nil {
		fields := map[string]any{
			"event_id":          stored.EventID,
			"event_type":        stored.EventType,
			"aggregate_id":      stored.AggregateID,
			"aggregate_type":    stored.AggregateType,
			"aggregate_version": stored.Version,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "domain event recorded")
	}
	return &stored, nil
}
