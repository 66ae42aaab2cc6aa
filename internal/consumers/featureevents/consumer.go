package featureevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/internal/coordinator"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox"
)

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type executor interface {
	Execute(ctx context.Context, op ledger.Operation, handler coordinator.Handler) (coordinator.Outcome, error)
}

// EventHandler is the business logic run once per delivered event.
type EventHandler interface {
	Handle(ctx context.Context, tx *gorm.DB, event models.StoredEvent) (string, error)
}

// Consumer turns domain bus deliveries into coordinated handler runs keyed by
// event id, so redelivered messages never repeat their side effects.
type Consumer struct {
	subscription subscriber
	coord        executor
	handler      EventHandler
	logg         *logger.Logger
}

func NewConsumer(subscription subscriber, coord executor, handler EventHandler, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if coord == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		coord:        coord,
		handler:      handler,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack       bool
	nack      bool
	duplicate bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": attributes["event_type"],
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope; dropping message", err)
		return processResult{ack: true}
	}
	event, err := envelope.StoredEvent()
	if err != nil {
		c.logg.Error(logCtx, "invalid envelope; dropping message", err)
		return processResult{ack: true}
	}
	if event.AggregateType != enums.AggregateFeature {
		c.logg.Info(logCtx, "skipping event for unhandled aggregate")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithEventID(logCtx, event.EventID)
	outcome, err := c.coord.Execute(logCtx, ledger.EventOperation(event.EventID), func(ctx context.Context, tx *gorm.DB) (string, error) {
		return c.handler.Handle(ctx, tx, event)
	})
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrOperationInFlight):
			c.logg.Warn(logCtx, "event still in flight elsewhere; redelivering")
		case !pkgerrors.IsRetryable(err):
			c.logg.Error(logCtx, "event can never be handled; dropping message", err)
			return processResult{ack: true}
		default:
			c.logg.Error(logCtx, "event handling failed", err)
		}
		return processResult{nack: true}
	}
	if outcome.Duplicate() {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true, duplicate: true}
	}
	c.logg.Info(logCtx, "event processed")
	return processResult{ack: true}
}
