package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/api/validators"
	"github.com/angelmondragon/featuretrack-backend/internal/eventstore"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/pagination"
)

// ListFeatureEvents returns the stored events of a feature in version order.
// Optional from/to narrow the window by occurred_at.
func ListFeatureEvents(svc eventstore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "event store unavailable"))
			return
		}

		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := eventstore.ListParams{
			AggregateID: code,
			Cursor:      strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if params.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.ListByAggregate(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
