package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Timeline     TimelineConfig
	Review       ReviewConfig
	Live         LiveConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Timeline.validate(); err != nil {
		return nil, err
	}
	if err := cfg.App.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"TOKENIZR_APP_ENV" required:"true"`
	Port         string   `envconfig:"TOKENIZR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"TOKENIZR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"TOKENIZR_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"TOKENIZR_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// credentialed CORS cannot be opened to every origin in production
func (a AppConfig) validate() error {
	if !a.IsProd() {
		return nil
	}
	for _, origin := range a.CORSOrigins {
		if strings.TrimSpace(origin) == "*" {
			return fmt.Errorf("%s must list explicit origins in %s", EnvCORSOrigins, AppEnvProd)
		}
	}
	return nil
}

type ServiceConfig struct {
	Kind string `envconfig:"TOKENIZR_SERVICE_KIND" default:"api"`
	// MetricsAddr is the listen address for /metrics on background binaries.
	MetricsAddr string `envconfig:"TOKENIZR_METRICS_ADDR"`
}

type DBConfig struct {
	DSN string `envconfig:"TOKENIZR_DB_DSN"`

	LegacyHost     string `envconfig:"TOKENIZR_DB_HOST"`
	LegacyPort     int    `envconfig:"TOKENIZR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TOKENIZR_DB_USER"`
	LegacyPassword string `envconfig:"TOKENIZR_DB_PASSWORD"`
	LegacyName     string `envconfig:"TOKENIZR_DB_NAME"`
	LegacySSLMode  string `envconfig:"TOKENIZR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TOKENIZR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TOKENIZR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TOKENIZR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TOKENIZR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements at warn once they run longer. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"TOKENIZR_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TOKENIZR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TOKENIZR_REDIS_ADDR"`
	Password     string        `envconfig:"TOKENIZR_REDIS_PASSWORD"`
	DB           int           `envconfig:"TOKENIZR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TOKENIZR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TOKENIZR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TOKENIZR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TOKENIZR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TOKENIZR_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyNamespace string        `envconfig:"TOKENIZR_REDIS_KEY_NAMESPACE" default:"tk"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TOKENIZR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TOKENIZR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TOKENIZR_JWT_EXPIRATION_MINUTES" required:"true"`
	// Audience is checked only when set.
	Audience string        `envconfig:"TOKENIZR_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"TOKENIZR_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TOKENIZR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"TOKENIZR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"TOKENIZR_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TOKENIZR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TOKENIZR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TOKENIZR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TokenizationTopic        string `envconfig:"TOKENIZR_PUBSUB_TOKENIZATION_TOPIC" default:"tk-tokenization-events"`
	TokenizationSubscription string `envconfig:"TOKENIZR_PUBSUB_TOKENIZATION_SUBSCRIPTION" default:"tk-tokenization-review"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TOKENIZR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TOKENIZR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TOKENIZR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval returns the relay poll interval, never shorter than 50ms.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS < 50 {
		return 50 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

// TimelineConfig overrides the stock launch durations per token type.
type TimelineConfig struct {
	UtilityLaunchDays  int `envconfig:"TOKENIZR_TIMELINE_UTILITY_LAUNCH_DAYS" default:"14"`
	SecurityLaunchDays int `envconfig:"TOKENIZR_TIMELINE_SECURITY_LAUNCH_DAYS" default:"21"`
}

func (t TimelineConfig) validate() error {
	if t.UtilityLaunchDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvTimelineUtilityDays)
	}
	if t.SecurityLaunchDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvTimelineSecurityDays)
	}
	return nil
}

// ReviewConfig lists the admin accounts notified when a draft enters review.
type ReviewConfig struct {
	AdminUserIDs []string `envconfig:"TOKENIZR_REVIEW_ADMIN_USER_IDS"`
}

// ReviewerIDs parses AdminUserIDs, skipping blanks.
func (r ReviewConfig) ReviewerIDs() ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(r.AdminUserIDs))
	for _, raw := range r.AdminUserIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid id %q: %w", EnvReviewerIDs, raw, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// LiveConfig tunes the best-effort live notification channel.
type LiveConfig struct {
	PushTimeout     time.Duration `envconfig:"TOKENIZR_LIVE_PUSH_TIMEOUT" default:"2s"`
	StreamHeartbeat time.Duration `envconfig:"TOKENIZR_LIVE_STREAM_HEARTBEAT" default:"25s"`
}

// MaintenanceConfig drives the retention worker.
type MaintenanceConfig struct {
	Interval              time.Duration `envconfig:"TOKENIZR_MAINTENANCE_INTERVAL" default:"1h"`
	NotificationRetention time.Duration `envconfig:"TOKENIZR_MAINTENANCE_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"TOKENIZR_MAINTENANCE_OUTBOX_RETENTION" default:"168h"`
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
