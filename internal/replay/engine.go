package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/internal/coordinator"
	"github.com/angelmondragon/featuretrack-backend/internal/eventstore"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/metrics"
)

const defaultPageSize = 200

// EventHandler is the business logic re-driven for each replayed event.
type EventHandler interface {
	Handle(ctx context.Context, tx *gorm.DB, event models.StoredEvent) (string, error)
}

type eventSource interface {
	List(ctx context.Context, query eventstore.Query) (eventstore.Page, error)
}

type executor interface {
	Execute(ctx context.Context, op ledger.Operation, handler coordinator.Handler) (coordinator.Outcome, error)
}

type Params struct {
	Logger      *logger.Logger
	Events      eventSource
	Coordinator executor
	Handler     EventHandler
	Metrics     *metrics.ReplayMetrics
	PageSize    int
}

// Engine re-enumerates stored events and runs each one through the
// coordinator under its own event id. Events already processed live are
// reported as successes without running the handler again.
type Engine struct {
	logg     *logger.Logger
	events   eventSource
	coord    executor
	handler  EventHandler
	metrics  *metrics.ReplayMetrics
	pageSize int
}

func NewEngine(params Params) (*Engine, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Events == nil {
		return nil, errors.New("event source required")
	}
	if params.Coordinator == nil {
		return nil, errors.New("coordinator required")
	}
	if params.Handler == nil {
		return nil, errors.New("event handler required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Engine{
		logg:     params.Logger,
		events:   params.Events,
		coord:    params.Coordinator,
		handler:  params.Handler,
		metrics:  params.Metrics,
		pageSize: pageSize,
	}, nil
}

// Replay processes every matching event in (occurred_at, version, event_id)
// order. Item failures are collected, never fatal. On cancellation the
// partial result is returned with the context error; effects already
// committed stay committed.
func (e *Engine) Replay(ctx context.Context, req Request) (*Result, error) {
	selector, err := req.Selector.normalize()
	if err != nil {
		return nil, err
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.From.After(req.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}

	result := newResult()
	if selector.Scope == enums.ReplayScopeAggregateSet && len(selector.AggregateIDs) == 0 {
		return result, nil
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"replay_scope":   selector.Scope,
		"replay_dry_run": req.DryRun,
		"aggregates":     strings.Join(selector.AggregateIDs, ","),
		"from":           formatBound(req.From),
		"to":             formatBound(req.To),
	})
	e.logg.Info(logCtx, "replay started")
	e.metrics.IncRun(string(selector.Scope), req.DryRun)
	defer func() {
		e.metrics.AddEvents("success", result.SuccessCount)
		e.metrics.AddEvents("failure", result.FailureCount)
	}()

	query := eventstore.Query{
		AggregateIDs: selector.AggregateIDs,
		From:         req.From,
		To:           req.To,
		Limit:        e.pageSize,
	}
	for {
		if err := ctx.Err(); err != nil {
			return e.interrupted(logCtx, result, err)
		}
		page, err := e.events.List(ctx, query)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.interrupted(logCtx, result, ctxErr)
			}
			return result.finish(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stored events")
		}

		for _, event := range page.Events {
			if err := ctx.Err(); err != nil {
				return e.interrupted(logCtx, result, err)
			}
			e.replayOne(ctx, event, req.DryRun, result)
		}

		if page.Next == nil {
			break
		}
		query.After = page.Next
	}

	result.finish()
	e.logg.Info(e.logg.WithFields(logCtx, map[string]any{
		"total":    result.TotalCount,
		"success":  result.SuccessCount,
		"failures": result.FailureCount,
	}), "replay finished")
	return result, nil
}

func (e *Engine) replayOne(ctx context.Context, event models.StoredEvent, dryRun bool, result *Result) {
	result.TotalCount++
	if dryRun {
		result.SuccessCount++
		return
	}

	_, err := e.coord.Execute(ctx, ledger.EventOperation(event.EventID), func(ctx context.Context, tx *gorm.DB) (string, error) {
		return e.handler.Handle(ctx, tx, event)
	})
	if err != nil {
		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Sprintf("event %s (%s %s): %v", event.EventID, event.EventType, event.AggregateID, err))
		e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"error":      err.Error(),
		}), "replay item failed")
		return
	}
	result.SuccessCount++
}

func (e *Engine) interrupted(ctx context.Context, result *Result, err error) (*Result, error) {
	result.finish()
	e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
		"total":  result.TotalCount,
		"reason": err.Error(),
	}), "replay interrupted")
	return result, err
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
