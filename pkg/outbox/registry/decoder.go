package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.EventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// NewFeatureDecoders registers the decoders for every feature event type at
// the current envelope version.
func NewFeatureDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventFeatureCreated, outbox.EnvelopeVersion, decodeInto(func() interface{} { return &payloads.FeatureCreatedEvent{} }))
	reg.Register(enums.EventFeatureUpdated, outbox.EnvelopeVersion, decodeInto(func() interface{} { return &payloads.FeatureUpdatedEvent{} }))
	reg.Register(enums.EventFeatureDeleted, outbox.EnvelopeVersion, decodeInto(func() interface{} { return &payloads.FeatureDeletedEvent{} }))
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.EventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.EventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

func decodeInto(factory func() interface{}) decoderFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		target := factory()
		if err := json.Unmarshal(payload, target); err != nil {
			return nil, err
		}
		return target, nil
	}
}
