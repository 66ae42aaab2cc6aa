// Package bootstrap assembles the event-processing pieces shared by the api,
// the worker and replayctl.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/featuretrack-backend/internal/coordinator"
	"github.com/angelmondragon/featuretrack-backend/internal/eventstore"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/internal/notifications"
	"github.com/angelmondragon/featuretrack-backend/internal/replay"
	"github.com/angelmondragon/featuretrack-backend/pkg/config"
	"github.com/angelmondragon/featuretrack-backend/pkg/db"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/metrics"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox/registry"
)

// Pipeline is the claim-then-execute stack over one database.
type Pipeline struct {
	Ledger        ledger.Repository
	Events        eventstore.Repository
	Notifications notifications.Repository
	Coordinator   *coordinator.Coordinator
	Handler       *notifications.Handler
	Replay        *replay.Engine
}

// NewPipeline wires ledger, coordinator, notification handler and replay
// engine. reg may be nil to skip metric registration.
func NewPipeline(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reg prometheus.Registerer) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if dbClient == nil {
		return nil, errors.New("db client required")
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB(), cfg.Ledger.Retention)
	eventsRepo := eventstore.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	coord, err := coordinator.New(coordinator.Params{
		Logger:       logg,
		DB:           dbClient,
		Ledger:       ledgerRepo,
		Metrics:      metrics.NewCoordinatorMetrics(reg),
		InFlightWait: cfg.Ledger.InFlightWait,
		InFlightPoll: cfg.Ledger.InFlightPoll,
		MaxRounds:    cfg.Ledger.MaxClaimRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	handler, err := notifications.NewHandler(notificationsRepo, registry.NewFeatureDecoders(), logg)
	if err != nil {
		return nil, fmt.Errorf("create notifications handler: %w", err)
	}

	engine, err := replay.NewEngine(replay.Params{
		Logger:      logg,
		Events:      eventsRepo,
		Coordinator: coord,
		Handler:     handler,
		Metrics:     metrics.NewReplayMetrics(reg),
		PageSize:    cfg.Replay.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create replay engine: %w", err)
	}

	return &Pipeline{
		Ledger:        ledgerRepo,
		Events:        eventsRepo,
		Notifications: notificationsRepo,
		Coordinator:   coord,
		Handler:       handler,
		Replay:        engine,
	}, nil
}
