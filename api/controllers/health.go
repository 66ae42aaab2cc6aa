package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/featuretrack-backend/api/responses"
	"github.com/angelmondragon/featuretrack-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

const (
	envHeader          = "X-FeatureTrack-Env"
	readinessCheckWait = 2 * time.Second
)

// Pinger is satisfied by the db, redis and pubsub clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names one dependency probed by /health/ready.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every configured dependency and answers 503 with the
// per-check status when any of them fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		statuses := make(map[string]string, len(checks))
		healthy := true
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readinessCheckWait)
			err := check.Pinger.Ping(ctx)
			cancel()
			if err != nil {
				healthy = false
				statuses[check.Name] = "unavailable"
				if logg != nil {
					logg.Warn(logg.WithFields(r.Context(), map[string]any{"check": check.Name, "error": err.Error()}), "readiness check failed")
				}
				continue
			}
			statuses[check.Name] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "not ready").WithDetails(map[string]any{"checks": statuses}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": statuses})
	}
}
