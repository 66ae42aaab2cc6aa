package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// EnvelopeVersion is the current PayloadEnvelope schema version.
const EnvelopeVersion = 1

// EventMetadata records where an event came from.
type EventMetadata struct {
	Source         string `json:"source,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and
// published on the bus. It carries everything needed to rebuild the stored
// event on the consuming side.
type PayloadEnvelope struct {
	Version          int                 `json:"version"`
	EventID          string              `json:"eventId"`
	EventType        enums.EventType     `json:"eventType"`
	AggregateType    enums.AggregateType `json:"aggregateType"`
	AggregateID      string              `json:"aggregateId"`
	AggregateVersion int64               `json:"aggregateVersion"`
	OccurredAt       time.Time           `json:"occurredAt"`
	Metadata         *EventMetadata      `json:"metadata,omitempty"`
	Data             json.RawMessage     `json:"data"`
}

// NewEnvelope wraps a stored event for publication.
func NewEnvelope(event models.StoredEvent) (PayloadEnvelope, error) {
	envelope := PayloadEnvelope{
		Version:          EnvelopeVersion,
		EventID:          event.EventID,
		EventType:        event.EventType,
		AggregateType:    event.AggregateType,
		AggregateID:      event.AggregateID,
		AggregateVersion: event.Version,
		OccurredAt:       event.OccurredAt.UTC(),
		Data:             event.Payload,
	}
	if len(event.Metadata) > 0 {
		var meta EventMetadata
		if err := json.Unmarshal(event.Metadata, &meta); err != nil {
			return PayloadEnvelope{}, fmt.Errorf("decode event metadata: %w", err)
		}
		envelope.Metadata = &meta
	}
	return envelope, nil
}

// StoredEvent rebuilds the stored event carried by the envelope.
func (e PayloadEnvelope) StoredEvent() (models.StoredEvent, error) {
	if e.EventID == "" {
		return models.StoredEvent{}, fmt.Errorf("envelope missing event id")
	}
	if !e.EventType.BelongsTo(e.AggregateType) {
		return models.StoredEvent{}, fmt.Errorf("event type %q does not belong to aggregate %q", e.EventType, e.AggregateType)
	}
	event := models.StoredEvent{
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Payload:       e.Data,
		OccurredAt:    e.OccurredAt,
		Version:       e.AggregateVersion,
	}
	if e.Metadata != nil {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return models.StoredEvent{}, err
		}
		event.Metadata = meta
	}
	return event, nil
}
