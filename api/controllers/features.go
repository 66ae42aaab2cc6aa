package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/featuretrack-backend/api/middleware"
	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/api/validators"
	"github.com/angelmondragon/featuretrack-backend/internal/features"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

const maxFeatureCodeLength = 64

type createFeatureRequest struct {
	Code           string  `json:"code" validate:"required,max=64"`
	ProductCode    string  `json:"productCode" validate:"required,max=64"`
	Title          string  `json:"title" validate:"required,max=200"`
	Description    *string `json:"description" validate:"omitempty,max=4000"`
	Status         string  `json:"status" validate:"omitempty,oneof=planned in_progress released"`
	IdempotencyKey string  `json:"idempotencyKey" validate:"omitempty,max=255"`
}

type updateFeatureRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
	Status      *string `json:"status" validate:"omitempty,oneof=planned in_progress released"`
}

// CreateFeature handles POST /api/v1/features. The Idempotency-Key header
// wins over the idempotencyKey body field when both are sent.
func CreateFeature(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "features service unavailable"))
			return
		}

		var body createFeatureRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info := commandInfo(r)
		if info.IdempotencyKey == "" {
			info.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)
		}

		result, err := svc.Create(r.Context(), features.CreateInput{
			CommandInfo: info,
			Code:        body.Code,
			ProductCode: body.ProductCode,
			Title:       body.Title,
			Description: body.Description,
			Status:      enums.FeatureStatus(body.Status),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCommandResult(w, http.StatusCreated, result)
	}
}

// UpdateFeature handles PATCH /api/v1/features/{code}.
func UpdateFeature(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "features service unavailable"))
			return
		}

		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateFeatureRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := features.UpdateInput{
			CommandInfo: commandInfo(r),
			Title:       body.Title,
			Description: body.Description,
		}
		if body.Status != nil {
			status := enums.FeatureStatus(*body.Status)
			input.Status = &status
		}

		result, err := svc.Update(r.Context(), code, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCommandResult(w, http.StatusOK, result)
	}
}

// DeleteFeature handles DELETE /api/v1/features/{code}.
func DeleteFeature(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "features service unavailable"))
			return
		}

		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Delete(r.Context(), code, features.DeleteInput{CommandInfo: commandInfo(r)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCommandResult(w, http.StatusOK, result)
	}
}

// GetFeature handles GET /api/v1/features/{code}.
func GetFeature(svc features.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "features service unavailable"))
			return
		}

		code, err := featureCodeParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		feature, err := svc.Get(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, feature)
	}
}

func commandInfo(r *http.Request) features.CommandInfo {
	return features.CommandInfo{
		IdempotencyKey: middleware.IdempotencyKeyFromContext(r.Context()),
		RequestID:      middleware.RequestIDFromContext(r.Context()),
	}
}

func featureCodeParam(r *http.Request) (string, error) {
	code := validators.SanitizeString(chi.URLParam(r, "code"), 0)
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "feature code is required")
	}
	if len(code) > maxFeatureCodeLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "feature code is too long")
	}
	return strings.ToUpper(code), nil
}

// writeCommandResult renders duplicates with the original status and body;
// only the replay header tells them apart.
func writeCommandResult(w http.ResponseWriter, status int, result *features.CommandResult) {
	if result != nil && result.Duplicate {
		w.Header().Set(middleware.IdempotentReplayedHeader, "true")
	}
	responses.WriteSuccessStatus(w, status, result)
}
