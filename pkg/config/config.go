package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	FeatureFlags    FeatureFlagsConfig
	Stripe          StripeConfig
	Payments        PaymentsConfig
	OrderStatus     OrderStatusConfig
	VendorDirectory VendorDirectoryConfig
	GCP             GCPConfig
	PubSub          PubSubConfig
	Outbox          OutboxConfig
	Webhook         WebhookConfig
	CORS            CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOCALTABLE_APP_ENV" required:"true"`
	Port         string `envconfig:"LOCALTABLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOCALTABLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOCALTABLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOCALTABLE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOCALTABLE_DB_DSN"`
	Driver string `envconfig:"LOCALTABLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOCALTABLE_DB_HOST"`
	LegacyPort     int    `envconfig:"LOCALTABLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOCALTABLE_DB_USER"`
	LegacyPassword string `envconfig:"LOCALTABLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOCALTABLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOCALTABLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOCALTABLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOCALTABLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOCALTABLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOCALTABLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOCALTABLE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOCALTABLE_REDIS_ADDR"`
	Password     string        `envconfig:"LOCALTABLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOCALTABLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOCALTABLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOCALTABLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOCALTABLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOCALTABLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOCALTABLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOCALTABLE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"LOCALTABLE_STRIPE_API_KEY"`
	Secret string `envconfig:"LOCALTABLE_STRIPE_SECRET"`
	Env    string `envconfig:"LOCALTABLE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	Currency             string `envconfig:"LOCALTABLE_PAYMENTS_CURRENCY" default:"usd"`
	OnboardingRefreshURL string `envconfig:"LOCALTABLE_ONBOARDING_REFRESH_URL"`
	OnboardingReturnURL  string `envconfig:"LOCALTABLE_ONBOARDING_RETURN_URL"`
}

type OrderStatusConfig struct {
	BaseURL string        `envconfig:"LOCALTABLE_ORDER_STATUS_BASE_URL"`
	Timeout time.Duration `envconfig:"LOCALTABLE_ORDER_STATUS_TIMEOUT" default:"5s"`
}

type VendorDirectoryConfig struct {
	BaseURL string        `envconfig:"LOCALTABLE_VENDOR_DIRECTORY_BASE_URL"`
	Timeout time.Duration `envconfig:"LOCALTABLE_VENDOR_DIRECTORY_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LOCALTABLE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LOCALTABLE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LOCALTABLE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic        string `envconfig:"LOCALTABLE_PUBSUB_PAYMENTS_TOPIC" default:"lt-payment-events"`
	PaymentsSubscription string `envconfig:"LOCALTABLE_PUBSUB_PAYMENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOCALTABLE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOCALTABLE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOCALTABLE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LOCALTABLE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LOCALTABLE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
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
