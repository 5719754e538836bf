package config

const EnvPrefix = "SERVICELINK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv            = "SERVICELINK_APP_ENV"
	EnvPort              = "SERVICELINK_APP_PORT"
	EnvDBDSN             = "SERVICELINK_DB_DSN"
	EnvDBHost            = "SERVICELINK_DB_HOST"
	EnvDBUser            = "SERVICELINK_DB_USER"
	EnvDBName            = "SERVICELINK_DB_NAME"
	EnvRedisURL          = "SERVICELINK_REDIS_URL"
	EnvJWTSecret         = "SERVICELINK_JWT_SECRET"
	EnvJWTIssuer         = "SERVICELINK_JWT_ISSUER"
	EnvJWTExpMins        = "SERVICELINK_JWT_EXPIRATION_MINUTES"
	EnvPaystackSecretKey = "SERVICELINK_PAYSTACK_SECRET_KEY"
	EnvPaystackCallback  = "SERVICELINK_PAYSTACK_CALLBACK_URL"
	EnvMinimumQuote      = "SERVICELINK_MINIMUM_QUOTE"
	EnvPubSubDomainTopic = "SERVICELINK_PUBSUB_DOMAIN_TOPIC"
	EnvOutboxRetention   = "SERVICELINK_OUTBOX_RETENTION"
	EnvDLQRetention      = "SERVICELINK_OUTBOX_DLQ_RETENTION"
	EnvCronInterval      = "SERVICELINK_CRON_INTERVAL"
	EnvGCPProjectID      = "SERVICELINK_GCP_PROJECT_ID"
	EnvAppPublicURL      = "SERVICELINK_APP_PUBLIC_URL"
	EnvLeadsUnlockLimit  = "SERVICELINK_LEADS_UNLOCK_RATE_LIMIT"
	EnvLeadsUnlockWindow = "SERVICELINK_LEADS_UNLOCK_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
