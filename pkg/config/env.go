package config

const (
	EnvPrefix = "FEATURETRACK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FEATURETRACK_APP_ENV"
	EnvPort     = "FEATURETRACK_APP_PORT"
	EnvLogLevel = "FEATURETRACK_LOG_LEVEL"

	EnvDBDSN  = "FEATURETRACK_DB_DSN"
	EnvDBHost = "FEATURETRACK_DB_HOST"
	EnvDBUser = "FEATURETRACK_DB_USER"
	EnvDBName = "FEATURETRACK_DB_NAME"

	EnvUseSQLite = "FEATURETRACK_USE_SQLITE"
	EnvRedisURL  = "FEATURETRACK_REDIS_URL"

	EnvLedgerRetention    = "FEATURETRACK_LEDGER_RETENTION"
	EnvLedgerInFlightWait = "FEATURETRACK_LEDGER_IN_FLIGHT_WAIT"
	EnvLedgerInFlightPoll = "FEATURETRACK_LEDGER_IN_FLIGHT_POLL"

	EnvReplayPageSize = "FEATURETRACK_REPLAY_PAGE_SIZE"

	EnvGCPProjectID      = "FEATURETRACK_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "FEATURETRACK_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubDomainSub   = "FEATURETRACK_PUBSUB_DOMAIN_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
