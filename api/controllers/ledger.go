package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/api/validators"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

// LookupLedgerEntry exposes a single ledger entry so operators can see whether
// an operation was claimed, finished, or is still in flight.
func LookupLedgerEntry(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		class := validators.SanitizeString(chi.URLParam(r, "class"), 0)
		operationID := validators.SanitizeString(chi.URLParam(r, "operationId"), 0)

		entry, err := svc.Lookup(r.Context(), class, operationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}
