package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// StoredEvent is an append-only record of a domain event and the source of
// truth for replay.
type StoredEvent struct {
	EventID       string              `gorm:"column:event_id;type:text;primaryKey"`
	EventType     enums.EventType     `gorm:"column:event_type;type:text;not null"`
	AggregateID   string              `gorm:"column:aggregate_id;type:text;not null;uniqueIndex:ux_stored_events_aggregate_version,priority:1"`
	AggregateType enums.AggregateType `gorm:"column:aggregate_type;type:text;not null"`
	Payload       json.RawMessage     `gorm:"column:payload;type:jsonb;not null"`
	Metadata      json.RawMessage     `gorm:"column:metadata;type:jsonb"`
	OccurredAt    time.Time           `gorm:"column:occurred_at;not null;index:idx_stored_events_occurred_at"`
	Version       int64               `gorm:"column:version;not null;uniqueIndex:ux_stored_events_aggregate_version,priority:2"`
	RecordedAt    time.Time           `gorm:"column:recorded_at;autoCreateTime"`
}

func (StoredEvent) TableName() string { return "stored_events" }
