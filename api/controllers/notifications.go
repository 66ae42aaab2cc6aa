package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/api/validators"
	"github.com/angelmondragon/featuretrack-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/pagination"
)

// ListFeatureNotifications returns paginated notifications produced for a feature.
func ListFeatureNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.ListByFeature(r.Context(), notifications.ListParams{
			FeatureCode: code,
			Limit:       limit,
			Cursor:      strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
