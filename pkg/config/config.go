package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Paystack     PaystackConfig
	Bookings     BookingsConfig
	Leads        LeadsConfig
	RateLimit    RateLimitConfig
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
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects settings envconfig accepts but the services cannot run with.
// Every problem is reported, not just the first.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Bookings.MinimumQuote.IsPositive(), "%s must be positive, got %s", EnvMinimumQuote, c.Bookings.MinimumQuote)
	check(c.Outbox.BatchSize > 0, "outbox batch size must be positive, got %d", c.Outbox.BatchSize)
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive, got %d", c.Outbox.MaxAttempts)
	check(c.Outbox.DLQRetention >= c.Outbox.Retention,
		"%s (%s) shorter than %s (%s)", EnvDLQRetention, c.Outbox.DLQRetention, EnvOutboxRetention, c.Outbox.Retention)
	check(c.Leads.UnlockLimit > 0, "%s must be positive, got %d", EnvLeadsUnlockLimit, c.Leads.UnlockLimit)
	check(c.JWT.Leeway >= 0, "jwt leeway must not be negative")
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"SERVICELINK_APP_ENV" required:"true"`
	Port         string `envconfig:"SERVICELINK_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"SERVICELINK_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"SERVICELINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SERVICELINK_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SERVICELINK_LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string      `envconfig:"SERVICELINK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CORSMaxAge         time.Duration `envconfig:"SERVICELINK_CORS_MAX_AGE" default:"5m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SERVICELINK_SERVICE_KIND" default:"api"`
	// MetricsPort exposes /metrics on background workers; empty disables the listener.
	MetricsPort string `envconfig:"SERVICELINK_METRICS_PORT"`
}

type DBConfig struct {
	DSN    string `envconfig:"SERVICELINK_DB_DSN"`
	Driver string `envconfig:"SERVICELINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SERVICELINK_DB_HOST"`
	LegacyPort     int    `envconfig:"SERVICELINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SERVICELINK_DB_USER"`
	LegacyPassword string `envconfig:"SERVICELINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"SERVICELINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"SERVICELINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SERVICELINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SERVICELINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SERVICELINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SERVICELINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold turns on gorm's slow query warnings. Zero keeps gorm silent.
	SlowQueryThreshold time.Duration `envconfig:"SERVICELINK_DB_SLOW_QUERY_THRESHOLD" default:"0"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SERVICELINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SERVICELINK_REDIS_ADDR"`
	Password     string        `envconfig:"SERVICELINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SERVICELINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SERVICELINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SERVICELINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SERVICELINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SERVICELINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SERVICELINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SERVICELINK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SERVICELINK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SERVICELINK_JWT_EXPIRATION_MINUTES" default:"60"`

	// Leeway tolerates clock skew against the identity service.
	Leeway time.Duration `envconfig:"SERVICELINK_JWT_LEEWAY" default:"30s"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SERVICELINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SERVICELINK_AUTO_MIGRATE" default:"false"`
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"SERVICELINK_PAYSTACK_SECRET_KEY"`
	BaseURL     string        `envconfig:"SERVICELINK_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"SERVICELINK_PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"SERVICELINK_PAYSTACK_TIMEOUT" default:"10s"`
	WebhookTTL  time.Duration `envconfig:"SERVICELINK_PAYSTACK_WEBHOOK_TTL" default:"720h"`
}

// Callback resolves the redirect target handed to the gateway when a deposit is initialised.
func (p PaystackConfig) Callback(publicURL string) string {
	if strings.TrimSpace(p.CallbackURL) != "" {
		return p.CallbackURL
	}
	return strings.TrimRight(publicURL, "/") + "/payment/callback"
}

type BookingsConfig struct {
	// Currency is the ISO code shown alongside amounts; amounts themselves are decimal units.
	Currency string `envconfig:"SERVICELINK_CURRENCY" default:"ZAR"`
	// MinimumQuote guards against quotes that leave nothing to charge.
	MinimumQuote decimal.Decimal `envconfig:"SERVICELINK_MINIMUM_QUOTE" default:"0.01"`
}

type LeadsConfig struct {
	UnlockWindow time.Duration `envconfig:"SERVICELINK_LEADS_UNLOCK_WINDOW" default:"1m"`
	UnlockLimit  int           `envconfig:"SERVICELINK_LEADS_UNLOCK_RATE_LIMIT" default:"20"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SERVICELINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SERVICELINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SERVICELINK_GOOGLE_APPLICATION_CREDENTIALS"`
	// PubSubEndpoint points the client at an emulator (plaintext, no auth) when set.
	PubSubEndpoint string `envconfig:"SERVICELINK_PUBSUB_ENDPOINT"`
}

type PubSubConfig struct {
	DomainTopic  string `envconfig:"SERVICELINK_PUBSUB_DOMAIN_TOPIC" default:"servicelink-domain-events"`
	BillingTopic string `envconfig:"SERVICELINK_PUBSUB_BILLING_TOPIC" default:"servicelink-billing-events"`

	BookingMessagesSubscription string `envconfig:"SERVICELINK_PUBSUB_BOOKING_MESSAGES_SUBSCRIPTION" default:"servicelink-booking-messages-sub"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SERVICELINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SERVICELINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SERVICELINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"SERVICELINK_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"SERVICELINK_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

// RateLimitConfig throttles the public webhook and message sending surfaces.
type RateLimitConfig struct {
	MessageWindow    time.Duration `envconfig:"SERVICELINK_RATE_LIMIT_MESSAGE_WINDOW" default:"1m"`
	MessageIPLimit   int           `envconfig:"SERVICELINK_RATE_LIMIT_MESSAGE_IP" default:"60"`
	MessageUserLimit int           `envconfig:"SERVICELINK_RATE_LIMIT_MESSAGE_USER" default:"30"`
	WebhookWindow    time.Duration `envconfig:"SERVICELINK_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit   int           `envconfig:"SERVICELINK_RATE_LIMIT_WEBHOOK_IP" default:"120"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SERVICELINK_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"SERVICELINK_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
