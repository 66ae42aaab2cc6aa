package enums

import "fmt"

// AggregateType names the domain entity a stored event belongs to.
type AggregateType string

const (
	AggregateFeature AggregateType = "Feature"
)

var validAggregateTypes = []AggregateType{
	AggregateFeature,
}

// IsValid reports whether the value matches a known aggregate type.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAggregateType converts raw input into AggregateType.
func ParseAggregateType(value string) (AggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// EventType is the closed set of domain event names. Every value belongs to
// exactly one aggregate type.
type EventType string

const (
	EventFeatureCreated EventType = "FeatureCreated"
	EventFeatureUpdated EventType = "FeatureUpdated"
	EventFeatureDeleted EventType = "FeatureDeleted"
)

var eventTypesByAggregate = map[AggregateType][]EventType{
	AggregateFeature: {
		EventFeatureCreated,
		EventFeatureUpdated,
		EventFeatureDeleted,
	},
}

// IsValid reports whether the value is a known event type.
func (e EventType) IsValid() bool {
	_, ok := e.Aggregate()
	return ok
}

// Aggregate returns the aggregate type owning the event type.
func (e EventType) Aggregate() (AggregateType, bool) {
	for aggregate, types := range eventTypesByAggregate {
		for _, candidate := range types {
			if candidate == e {
				return aggregate, true
			}
		}
	}
	return "", false
}

// BelongsTo reports whether the event type is declared for the aggregate.
func (e EventType) BelongsTo(aggregate AggregateType) bool {
	owner, ok := e.Aggregate()
	return ok && owner == aggregate
}

// EventTypesFor lists the event types declared for an aggregate.
func EventTypesFor(aggregate AggregateType) []EventType {
	types := eventTypesByAggregate[aggregate]
	out := make([]EventType, len(types))
	copy(out, types)
	return out
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	candidate := EventType(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
