package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Replay       ReplayConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FEATURETRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"FEATURETRACK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FEATURETRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FEATURETRACK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FEATURETRACK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FEATURETRACK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FEATURETRACK_DB_DSN"`
	Driver string `envconfig:"FEATURETRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FEATURETRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"FEATURETRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FEATURETRACK_DB_USER"`
	LegacyPassword string `envconfig:"FEATURETRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FEATURETRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FEATURETRACK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FEATURETRACK_SQLITE_PATH" default:"featuretrack.db"`

	MaxOpenConns    int           `envconfig:"FEATURETRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FEATURETRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FEATURETRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FEATURETRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FEATURETRACK_REDIS_URL"`
	Address      string        `envconfig:"FEATURETRACK_REDIS_ADDR"`
	Password     string        `envconfig:"FEATURETRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FEATURETRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FEATURETRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FEATURETRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FEATURETRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FEATURETRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FEATURETRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether a redis endpoint was supplied.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FEATURETRACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FEATURETRACK_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig tunes the dedup ledger and the claim coordinator.
type LedgerConfig struct {
	Retention      time.Duration `envconfig:"FEATURETRACK_LEDGER_RETENTION" default:"24h"`
	InFlightWait   time.Duration `envconfig:"FEATURETRACK_LEDGER_IN_FLIGHT_WAIT" default:"2s"`
	InFlightPoll   time.Duration `envconfig:"FEATURETRACK_LEDGER_IN_FLIGHT_POLL" default:"100ms"`
	MaxClaimRounds int           `envconfig:"FEATURETRACK_LEDGER_MAX_CLAIM_ROUNDS" default:"5"`
}

func (l LedgerConfig) validate() error {
	if l.Retention <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerRetention)
	}
	if l.InFlightWait < 0 || l.InFlightPoll < 0 {
		return fmt.Errorf("%s and %s must not be negative", EnvLedgerInFlightWait, EnvLedgerInFlightPoll)
	}
	return nil
}

type ReplayConfig struct {
	PageSize int `envconfig:"FEATURETRACK_REPLAY_PAGE_SIZE" default:"200"`

	// Fixed-window limit per client IP on the replay endpoints. Disabled when
	// redis is not configured or either value is zero.
	RateLimitWindow time.Duration `envconfig:"FEATURETRACK_REPLAY_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMax    int           `envconfig:"FEATURETRACK_REPLAY_RATE_LIMIT_MAX" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FEATURETRACK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FEATURETRACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FEATURETRACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"FEATURETRACK_PUBSUB_DOMAIN_TOPIC" default:"ft-domain-events"`
	DomainSubscription string `envconfig:"FEATURETRACK_PUBSUB_DOMAIN_SUBSCRIPTION" default:"ft-domain-events-sub"`
	MaxOutstanding     int    `envconfig:"FEATURETRACK_PUBSUB_MAX_OUTSTANDING" default:"10"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FEATURETRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FEATURETRACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FEATURETRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FEATURETRACK_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FEATURETRACK_CRON_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"FEATURETRACK_CRON_LOCK_KEY" default:"ft:cron:lock"`
	LockTTL  time.Duration `envconfig:"FEATURETRACK_CRON_LOCK_TTL" default:"55m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite || db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
