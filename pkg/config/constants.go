package config

const (
	EnvPrefix = "TOKENIZR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "TOKENIZR_APP_ENV"
	EnvPort     = "TOKENIZR_APP_PORT"
	EnvLogLevel = "TOKENIZR_LOG_LEVEL"

	EnvCORSOrigins = "TOKENIZR_CORS_ORIGINS"

	EnvDBDSN  = "TOKENIZR_DB_DSN"
	EnvDBHost = "TOKENIZR_DB_HOST"
	EnvDBUser = "TOKENIZR_DB_USER"
	EnvDBName = "TOKENIZR_DB_NAME"

	EnvRedisURL = "TOKENIZR_REDIS_URL"

	EnvJWTSecret  = "TOKENIZR_JWT_SECRET"
	EnvJWTIssuer  = "TOKENIZR_JWT_ISSUER"
	EnvJWTExpMins = "TOKENIZR_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "TOKENIZR_GCP_PROJECT_ID"

	EnvPubSubTokenizationTopic = "TOKENIZR_PUBSUB_TOKENIZATION_TOPIC"
	EnvPubSubTokenizationSub   = "TOKENIZR_PUBSUB_TOKENIZATION_SUBSCRIPTION"

	EnvTimelineUtilityDays  = "TOKENIZR_TIMELINE_UTILITY_LAUNCH_DAYS"
	EnvTimelineSecurityDays = "TOKENIZR_TIMELINE_SECURITY_LAUNCH_DAYS"

	EnvReviewerIDs = "TOKENIZR_REVIEW_ADMIN_USER_IDS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
