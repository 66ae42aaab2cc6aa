package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/featuretrack-backend/api/routes"
	"github.com/angelmondragon/featuretrack-backend/internal/bootstrap"
	"github.com/angelmondragon/featuretrack-backend/internal/eventstore"
	"github.com/angelmondragon/featuretrack-backend/internal/features"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/internal/notifications"
	"github.com/angelmondragon/featuretrack-backend/pkg/config"
	"github.com/angelmondragon/featuretrack-backend/pkg/db"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/migrate"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox"
	"github.com/angelmondragon/featuretrack-backend/pkg/pubsub"
	"github.com/angelmondragon/featuretrack-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	params := routes.Params{Config: cfg, Logger: logg, DB: dbClient}

	if cfg.Redis.Configured() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		params.Redis = redisClient
		params.RateLimiter = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured, replay rate limiting disabled")
	}

	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		params.PubSub = pubsubClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	params.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	pipeline, err := bootstrap.NewPipeline(cfg, logg, dbClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire event pipeline", err)
		os.Exit(1)
	}
	params.Replay = pipeline.Replay

	params.Features, err = features.NewService(features.Params{
		Logger:      logg,
		DB:          dbClient,
		Repo:        features.NewRepository(dbClient.DB()),
		Coordinator: pipeline.Coordinator,
		Outbox:      outbox.NewService(outbox.NewRepository(dbClient.DB()), pipeline.Events, logg),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create features service", err)
		os.Exit(1)
	}
	if params.Events, err = eventstore.NewService(pipeline.Events); err != nil {
		logg.Error(context.Background(), "failed to create event store service", err)
		os.Exit(1)
	}
	if params.Notifications, err = notifications.NewService(pipeline.Notifications); err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	if params.Ledger, err = ledger.NewService(pipeline.Ledger); err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
