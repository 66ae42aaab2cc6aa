package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox/payloads"
)

type payloadDecoder interface {
	Decode(eventType enums.EventType, version int, payload json.RawMessage) (interface{}, error)
}

// Handler is the business logic run for each consumed or replayed feature
// event. It writes one notification inside the caller's transaction.
type Handler struct {
	repo     Repository
	decoders payloadDecoder
	logg     *logger.Logger
}

func NewHandler(repo Repository, decoders payloadDecoder, logg *logger.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if decoders == nil {
		return nil, errors.New("payload decoders required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Handler{repo: repo, decoders: decoders, logg: logg}, nil
}

// Handle dispatches on the event type. Every feature event type has a case;
// anything else is an error so new types cannot be dropped silently. Events
// that can never be handled fail with a non-retryable validation error;
// storage failures are returned as-is and stay retryable.
func (h *Handler) Handle(ctx context.Context, tx *gorm.DB, event models.StoredEvent) (string, error) {
	if event.AggregateType != enums.AggregateFeature {
		return "", unprocessable(nil, "unsupported aggregate type %q", event.AggregateType)
	}
	decoded, err := h.decoders.Decode(event.EventType, outbox.EnvelopeVersion, event.Payload)
	if err != nil {
		return "", unprocessable(err, "decode %s payload: %v", event.EventType, err)
	}

	var notification *models.Notification
	switch event.EventType {
	case enums.EventFeatureCreated:
		payload, ok := decoded.(*payloads.FeatureCreatedEvent)
		if !ok {
			return "", unprocessable(nil, "unexpected payload %T for %s", decoded, event.EventType)
		}
		notification = &models.Notification{
			Type:    enums.NotificationTypeFeatureCreated,
			Title:   "Feature created",
			Message: fmt.Sprintf("Feature %s (%s) was added to %s.", event.AggregateID, payload.Title, payload.ProductCode),
		}
	case enums.EventFeatureUpdated:
		payload, ok := decoded.(*payloads.FeatureUpdatedEvent)
		if !ok {
			return "", unprocessable(nil, "unexpected payload %T for %s", decoded, event.EventType)
		}
		message := fmt.Sprintf("Feature %s was updated.", event.AggregateID)
		if len(payload.Changed) > 0 {
			message = fmt.Sprintf("Feature %s changed: %s.", event.AggregateID, strings.Join(payload.Changed, ", "))
		}
		notification = &models.Notification{
			Type:    enums.NotificationTypeFeatureUpdated,
			Title:   "Feature updated",
			Message: message,
		}
	case enums.EventFeatureDeleted:
		if _, ok := decoded.(*payloads.FeatureDeletedEvent); !ok {
			return "", unprocessable(nil, "unexpected payload %T for %s", decoded, event.EventType)
		}
		notification = &models.Notification{
			Type:    enums.NotificationTypeFeatureDeleted,
			Title:   "Feature deleted",
			Message: fmt.Sprintf("Feature %s was deleted.", event.AggregateID),
		}
	default:
		return "", unprocessable(nil, "unhandled event type %q", event.EventType)
	}

	notification.EventID = event.EventID
	notification.FeatureCode = event.AggregateID
	if err := h.repo.WithTx(tx).Create(ctx, notification); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   event.EventType,
		"feature_code": event.AggregateID,
	})
	h.logg.Info(logCtx, "feature notification created")
	return enums.ResultOK, nil
}

func unprocessable(cause error, format string, args ...any) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, fmt.Sprintf(format, args...))
}
