package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/featuretrack-backend/api/middleware"
	"github.com/angelmondragon/featuretrack-backend/internal/features"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
)

type stubFeatureService struct {
	createFn func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error)
	updateFn func(ctx context.Context, code string, input features.UpdateInput) (*features.CommandResult, error)
	deleteFn func(ctx context.Context, code string, input features.DeleteInput) (*features.CommandResult, error)
	getFn    func(ctx context.Context, code string) (*models.Feature, error)
}

func (s *stubFeatureService) Create(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
	return s.createFn(ctx, input)
}

func (s *stubFeatureService) Update(ctx context.Context, code string, input features.UpdateInput) (*features.CommandResult, error) {
	return s.updateFn(ctx, code, input)
}

func (s *stubFeatureService) Delete(ctx context.Context, code string, input features.DeleteInput) (*features.CommandResult, error) {
	return s.deleteFn(ctx, code, input)
}

func (s *stubFeatureService) Get(ctx context.Context, code string) (*models.Feature, error) {
	return s.getFn(ctx, code)
}

func TestCreateFeaturePassesKeyAndRequestID(t *testing.T) {
	var got features.CreateInput
	svc := &stubFeatureService{
		createFn: func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
			got = input
			return &features.CommandResult{Code: "FT-1", Result: "FT-1"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/features", strings.NewReader(`{"code":"ft-1","productCode":"core","title":"Dark mode","status":"in_progress","idempotencyKey":"body-key"}`))
	ctx := middleware.WithIdempotencyKey(req.Context(), "header-key")
	ctx = middleware.WithRequestID(ctx, "req-1")
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	CreateFeature(svc, testLogger())(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.IdempotencyKey != "header-key" {
		t.Fatalf("header key should win, got %q", got.IdempotencyKey)
	}
	if got.RequestID != "req-1" || got.Status != enums.FeatureStatusInProgress || got.Title != "Dark mode" {
		t.Fatalf("unexpected input %+v", got)
	}
	if rec.Header().Get(middleware.IdempotentReplayedHeader) != "" {
		t.Fatal("fresh execution must not carry the replay header")
	}

	var body features.CommandResult
	decodeData(t, rec, &body)
	if body.Code != "FT-1" || body.Result != "FT-1" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestCreateFeatureFallsBackToBodyKey(t *testing.T) {
	var key string
	svc := &stubFeatureService{
		createFn: func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
			key = input.IdempotencyKey
			return &features.CommandResult{Code: "FT-1", Result: "FT-1"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/features", strings.NewReader(`{"code":"FT-1","productCode":"core","title":"Dark mode","idempotencyKey":"body-key"}`))
	CreateFeature(svc, testLogger())(httptest.NewRecorder(), req)

	if key != "body-key" {
		t.Fatalf("expected body key, got %q", key)
	}
}

func TestCreateFeatureDuplicateKeepsStatusAndBody(t *testing.T) {
	calls := 0
	svc := &stubFeatureService{
		createFn: func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
			calls++
			return &features.CommandResult{Code: "FT-1", Result: "FT-1", Duplicate: calls > 1}, nil
		},
	}

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/features", strings.NewReader(`{"code":"FT-1","productCode":"core","title":"Dark mode"}`))
		req = req.WithContext(middleware.WithIdempotencyKey(req.Context(), "k"))
		rec := httptest.NewRecorder()
		CreateFeature(svc, testLogger())(rec, req)
		return rec
	}

	first := send()
	second := send()
	if first.Code != second.Code {
		t.Fatalf("status differs: %d vs %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("body differs: %s vs %s", first.Body.String(), second.Body.String())
	}
	if second.Header().Get(middleware.IdempotentReplayedHeader) != "true" {
		t.Fatal("expected replay header on duplicate")
	}
}

func TestCreateFeatureValidation(t *testing.T) {
	svc := &stubFeatureService{
		createFn: func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	cases := map[string]string{
		"missing title":  `{"code":"FT-1","productCode":"core"}`,
		"deleted status": `{"code":"FT-1","productCode":"core","title":"x","status":"deleted"}`,
		"unknown field":  `{"code":"FT-1","productCode":"core","title":"x","owner":"me"}`,
		"not json":       `nope`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/features", strings.NewReader(payload))
			rec := httptest.NewRecorder()
			CreateFeature(svc, testLogger())(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
				t.Fatalf("unexpected code %s", code)
			}
		})
	}
}

func TestCreateFeatureMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeConflict, "feature code already exists"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodeInFlight, "operation in flight"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodeDependency, "db down"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		svc := &stubFeatureService{
			createFn: func(ctx context.Context, input features.CreateInput) (*features.CommandResult, error) {
				return nil, tc.err
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/features", strings.NewReader(`{"code":"FT-1","productCode":"core","title":"x"}`))
		rec := httptest.NewRecorder()
		CreateFeature(svc, testLogger())(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.status, rec.Code)
		}
	}
}

func TestUpdateFeatureUppercasesCodeAndPassesFields(t *testing.T) {
	var gotCode string
	var got features.UpdateInput
	svc := &stubFeatureService{
		updateFn: func(ctx context.Context, code string, input features.UpdateInput) (*features.CommandResult, error) {
			gotCode = code
			got = input
			return &features.CommandResult{Code: code, Result: string(enums.ResultUpdated)}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/features/ft-1", strings.NewReader(`{"status":"released"}`))
	req = withURLParams(req, map[string]string{"code": "ft-1"})
	rec := httptest.NewRecorder()
	UpdateFeature(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCode != "FT-1" {
		t.Fatalf("expected uppercased code, got %q", gotCode)
	}
	if got.Title != nil || got.Status == nil || *got.Status != enums.FeatureStatusReleased {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestDeleteFeatureNotFound(t *testing.T) {
	svc := &stubFeatureService{
		deleteFn: func(ctx context.Context, code string, input features.DeleteInput) (*features.CommandResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "feature not found")
		},
	}

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/api/v1/features/FT-9", nil), map[string]string{"code": "FT-9"})
	rec := httptest.NewRecorder()
	DeleteFeature(svc, testLogger())(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestGetFeatureRequiresCode(t *testing.T) {
	svc := &stubFeatureService{}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/features/", nil), map[string]string{"code": "  "})
	rec := httptest.NewRecorder()
	GetFeature(svc, testLogger())(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetFeatureReturnsFeature(t *testing.T) {
	svc := &stubFeatureService{
		getFn: func(ctx context.Context, code string) (*models.Feature, error) {
			return &models.Feature{Code: code, Title: "Dark mode", Status: enums.FeatureStatusPlanned, Version: 1}, nil
		},
	}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/v1/features/FT-1", nil), map[string]string{"code": "FT-1"})
	rec := httptest.NewRecorder()
	GetFeature(svc, testLogger())(rec, req)

	var body struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Version int64  `json:"version"`
	}
	decodeData(t, rec, &body)
	if body.Code != "FT-1" || body.Status != "planned" || body.Version != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}
