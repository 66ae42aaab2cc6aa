package eventstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/pagination"
)

// Service exposes read access to stored events for operators.
type Service interface {
	ListByAggregate(ctx context.Context, params ListParams) (*ListResult, error)
}

type ListParams struct {
	AggregateID string
	From        time.Time
	To          time.Time
	Limit       int
	Cursor      string
}

type EventView struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	Version       int64           `json:"version"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

type ListResult struct {
	Items  []EventView `json:"items"`
	Cursor string      `json:"cursor"`
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event store repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListByAggregate(ctx context.Context, params ListParams) (*ListResult, error) {
	aggregateID := strings.TrimSpace(params.AggregateID)
	if aggregateID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "aggregate id required")
	}
	if !params.From.IsZero() && !params.To.IsZero() && params.From.After(params.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}

	query := Query{
		AggregateIDs: []string{aggregateID},
		From:         params.From,
		To:           params.To,
		Limit:        params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.After = cursor
	}

	page, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stored events")
	}

	items := make([]EventView, 0, len(page.Events))
	for _, event := range page.Events {
		items = append(items, toView(event))
	}
	cursor := ""
	if page.Next != nil {
		cursor = pagination.EncodeCursor(*page.Next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func toView(event models.StoredEvent) EventView {
	return EventView{
		EventID:       event.EventID,
		EventType:     string(event.EventType),
		AggregateID:   event.AggregateID,
		AggregateType: string(event.AggregateType),
		Version:       event.Version,
		OccurredAt:    event.OccurredAt.UTC(),
		Payload:       event.Payload,
		Metadata:      event.Metadata,
	}
}
