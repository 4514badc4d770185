// Package config loads every LOOTBAY_* setting with envconfig and checks the
// cross-field constraints envconfig tags cannot express.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"

	"github.com/lootbay/marketplace-backend/pkg/enums"
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
	Checkout     CheckoutConfig
	Settlement   SettlementConfig
	Payments     PaymentsConfig
	Catalog      CatalogConfig
	Webhook      WebhookConfig
	Security     SecurityConfig
	Tracing      TracingConfig
	Cron         CronConfig
}

// Load reads the environment. Every constraint violation is reported, not
// just the first.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.Checkout.validate(),
		cfg.Settlement.validate(),
		cfg.Outbox.validate(),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOOTBAY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOOTBAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOOTBAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOOTBAY_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"LOOTBAY_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOOTBAY_SERVICE_KIND" default:"api"`
	// MetricsAddr is where the worker binaries serve /metrics. Empty
	// disables the listener; the api serves metrics on its own router.
	MetricsAddr string `envconfig:"LOOTBAY_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOOTBAY_DB_DSN"`
	Driver string `envconfig:"LOOTBAY_DB_DRIVER" default:"postgres"`

	// Discrete connection settings, used only when DSN is empty.
	Host     string `envconfig:"LOOTBAY_DB_HOST"`
	Port     int    `envconfig:"LOOTBAY_DB_PORT" default:"5432"`
	User     string `envconfig:"LOOTBAY_DB_USER"`
	Password string `envconfig:"LOOTBAY_DB_PASSWORD"`
	Name     string `envconfig:"LOOTBAY_DB_NAME"`
	SSLMode  string `envconfig:"LOOTBAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOOTBAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOOTBAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOOTBAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOOTBAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOOTBAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOOTBAY_REDIS_ADDR"`
	Password     string        `envconfig:"LOOTBAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOOTBAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOOTBAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOOTBAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOOTBAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOOTBAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOOTBAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOOTBAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOOTBAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOOTBAY_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOOTBAY_AUTO_MIGRATE" default:"false"`
	// LogNotifier routes notifications to the log instead of Pub/Sub.
	LogNotifier bool `envconfig:"LOOTBAY_FEATURE_LOG_NOTIFIER" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LOOTBAY_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LOOTBAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LOOTBAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LOOTBAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"LOOTBAY_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"LOOTBAY_PUBSUB_ORDERS_SUBSCRIPTION"`
	NotificationTopic  string `envconfig:"LOOTBAY_PUBSUB_NOTIFICATION_TOPIC" default:"lb-notifications"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LOOTBAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LOOTBAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LOOTBAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"LOOTBAY_OUTBOX_RETENTION" default:"720h"`
}

func (o OutboxConfig) validate() error {
	var err error
	if o.BatchSize < 1 {
		err = multierr.Append(err, errors.New(EnvOutboxBatchSize+" must be positive"))
	}
	if o.MaxAttempts < 1 {
		err = multierr.Append(err, errors.New(EnvOutboxMaxAttempts+" must be positive"))
	}
	return err
}

type CheckoutConfig struct {
	HoldDuration  time.Duration `envconfig:"LOOTBAY_CHECKOUT_HOLD_DURATION" default:"15m"`
	PaymentWindow time.Duration `envconfig:"LOOTBAY_CHECKOUT_PAYMENT_WINDOW" default:"30m"`
	MaxQuantity   int           `envconfig:"LOOTBAY_CHECKOUT_MAX_QUANTITY" default:"10"`
}

func (c CheckoutConfig) validate() error {
	if c.HoldDuration <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutHoldDuration)
	}
	if c.PaymentWindow < c.HoldDuration {
		return fmt.Errorf("%s must be at least %s", EnvCheckoutPaymentWindow, EnvCheckoutHoldDuration)
	}
	return nil
}

type SettlementConfig struct {
	AutoReleaseAfter time.Duration `envconfig:"LOOTBAY_SETTLEMENT_AUTO_RELEASE_AFTER" default:"72h"`
	MinReasonLength  int           `envconfig:"LOOTBAY_SETTLEMENT_MIN_REASON_LENGTH" default:"10"`
	Currency         string        `envconfig:"LOOTBAY_SETTLEMENT_CURRENCY" default:"USD"`
}

func (s SettlementConfig) validate() error {
	var err error
	if s.MinReasonLength < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be at least 1", EnvMinReasonLength))
	}
	if _, perr := enums.ParseCurrency(s.Currency); perr != nil {
		err = multierr.Append(err, fmt.Errorf("%s: %w", EnvSettlementCurrency, perr))
	}
	return err
}

type PaymentsConfig struct {
	Provider string        `envconfig:"LOOTBAY_PAYMENTS_PROVIDER" default:"local"`
	BaseURL  string        `envconfig:"LOOTBAY_PAYMENTS_BASE_URL"`
	APIKey   string        `envconfig:"LOOTBAY_PAYMENTS_API_KEY"`
	Timeout  time.Duration `envconfig:"LOOTBAY_PAYMENTS_TIMEOUT" default:"10s"`
}

type CatalogConfig struct {
	// BaseURL switches the catalog reader to the remote catalog service when set.
	BaseURL string        `envconfig:"LOOTBAY_CATALOG_BASE_URL"`
	Timeout time.Duration `envconfig:"LOOTBAY_CATALOG_TIMEOUT" default:"5s"`
}

type WebhookConfig struct {
	Secret      string        `envconfig:"LOOTBAY_WEBHOOK_SECRET"`
	GuardTTL    time.Duration `envconfig:"LOOTBAY_WEBHOOK_GUARD_TTL" default:"24h"`
	MaxBodySize int64         `envconfig:"LOOTBAY_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	RateLimit   int           `envconfig:"LOOTBAY_WEBHOOK_RATE_LIMIT" default:"600"`
}

type SecurityConfig struct {
	// InventorySealKey is a 32 byte key, hex encoded.
	InventorySealKey string `envconfig:"LOOTBAY_INVENTORY_SEAL_KEY" required:"true"`
}

type TracingConfig struct {
	ExporterEndpoint string  `envconfig:"LOOTBAY_OTEL_EXPORTER_ENDPOINT"`
	Insecure         bool    `envconfig:"LOOTBAY_OTEL_EXPORTER_INSECURE" default:"true"`
	SampleRatio      float64 `envconfig:"LOOTBAY_OTEL_SAMPLE_RATIO" default:"1"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"LOOTBAY_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"LOOTBAY_CRON_LOCK_TTL" default:"5m"`
	ReclaimBatch   int           `envconfig:"LOOTBAY_CRON_RECLAIM_BATCH" default:"500"`
	SettlementScan int           `envconfig:"LOOTBAY_CRON_SETTLEMENT_BATCH" default:"100"`
	// JobTimeout bounds a single sweep so one stuck job cannot hold the
	// lock for the rest of the cycle.
	JobTimeout time.Duration `envconfig:"LOOTBAY_CRON_JOB_TIMEOUT" default:"2m"`
}

// ensureDSN assembles a postgres URL from the discrete settings when no DSN
// is given.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, val := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s is unset and so are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
