package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/api/validators"
	"github.com/angelmondragon/featuretrack-backend/internal/replay"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

// Replayer runs a replay request to completion.
type Replayer interface {
	Replay(ctx context.Context, req replay.Request) (*replay.Result, error)
}

type replayWindowRequest struct {
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
	DryRun bool       `json:"dryRun"`
}

type replayFeaturesRequest struct {
	Codes  []string   `json:"codes" validate:"max=500,dive,max=64"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
	DryRun bool       `json:"dryRun"`
}

// ReplayFeature handles POST /api/v1/replay/features/{code}.
func ReplayFeature(engine Replayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body replayWindowRequest
		if err := decodeOptionalBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		runReplay(w, r, engine, logg, replay.Request{
			Selector: replay.Aggregate(code),
			From:     timeOrZero(body.From),
			To:       timeOrZero(body.To),
			DryRun:   body.DryRun,
		})
	}
}

// ReplayFeatures handles POST /api/v1/replay/features. An empty code list is
// a valid request and yields an empty result.
func ReplayFeatures(engine Replayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body replayFeaturesRequest
		if err := decodeOptionalBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		codes := make([]string, 0, len(body.Codes))
		for _, code := range body.Codes {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(code)))
		}

		runReplay(w, r, engine, logg, replay.Request{
			Selector: replay.AggregateSet(codes),
			From:     timeOrZero(body.From),
			To:       timeOrZero(body.To),
			DryRun:   body.DryRun,
		})
	}
}

// ReplayAll handles POST /api/v1/replay.
func ReplayAll(engine Replayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body replayWindowRequest
		if err := decodeOptionalBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		runReplay(w, r, engine, logg, replay.Request{
			Selector: replay.All(),
			From:     timeOrZero(body.From),
			To:       timeOrZero(body.To),
			DryRun:   body.DryRun,
		})
	}
}

func runReplay(w http.ResponseWriter, r *http.Request, engine Replayer, logg *logger.Logger, req replay.Request) {
	if engine == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "replay engine unavailable"))
		return
	}

	result, err := engine.Replay(r.Context(), req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			typed := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay interrupted")
			if result != nil {
				typed = typed.WithDetails(result)
			}
			err = typed
		}
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, result)
}

// decodeOptionalBody lets replay callers omit the body entirely.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
