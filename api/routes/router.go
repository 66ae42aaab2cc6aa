package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/featuretrack-backend/api/controllers"
	"github.com/angelmondragon/featuretrack-backend/api/middleware"
	"github.com/angelmondragon/featuretrack-backend/internal/eventstore"
	"github.com/angelmondragon/featuretrack-backend/internal/features"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/internal/notifications"
	"github.com/angelmondragon/featuretrack-backend/pkg/config"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

// Params carries everything the HTTP surface needs. RateLimiter, Redis and
// PubSub are optional; a nil value disables the limiter or skips the
// readiness check.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB          controllers.Pinger
	Redis       controllers.Pinger
	PubSub      controllers.Pinger
	RateLimiter middleware.RateLimitStore
	Metrics     http.Handler

	Features      features.Service
	Events        eventstore.Service
	Notifications notifications.Service
	Ledger        ledger.Service
	Replay        controllers.Replayer
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: p.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: p.Redis},
			controllers.ReadinessCheck{Name: "pubsub", Pinger: p.PubSub},
		))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.IdempotencyKey(logg))

		r.Route("/features", func(r chi.Router) {
			r.Post("/", controllers.CreateFeature(p.Features, logg))
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", controllers.GetFeature(p.Features, logg))
				r.Patch("/", controllers.UpdateFeature(p.Features, logg))
				r.Delete("/", controllers.DeleteFeature(p.Features, logg))
				r.Get("/events", controllers.ListFeatureEvents(p.Events, logg))
				r.Get("/notifications", controllers.ListFeatureNotifications(p.Notifications, logg))
			})
		})

		r.Route("/replay", func(r chi.Router) {
			r.Use(middleware.RateLimit(
				middleware.NewRateLimitPolicy("replay", cfg.Replay.RateLimitWindow, cfg.Replay.RateLimitMax),
				p.RateLimiter,
				logg,
			))
			r.Post("/", controllers.ReplayAll(p.Replay, logg))
			r.Post("/features", controllers.ReplayFeatures(p.Replay, logg))
			r.Post("/features/{code}", controllers.ReplayFeature(p.Replay, logg))
		})

		r.Get("/ledger/{class}/{operationId}", controllers.LookupLedgerEntry(p.Ledger, logg))
	})

	return r
}
