package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "tradefair"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "TRADEFAIR_APP_ENV"
	EnvDBDSN  = "TRADEFAIR_DB_DSN"
	EnvDBHost = "TRADEFAIR_DB_HOST"
	EnvDBUser = "TRADEFAIR_DB_USER"
	EnvDBName = "TRADEFAIR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

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
	Wallet       WalletConfig
	Payouts      PayoutsConfig
	Transfer     TransferConfig
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
	Env          string `envconfig:"TRADEFAIR_APP_ENV" required:"true"`
	Port         string `envconfig:"TRADEFAIR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRADEFAIR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRADEFAIR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRADEFAIR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRADEFAIR_DB_DSN"`
	Driver string `envconfig:"TRADEFAIR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRADEFAIR_DB_HOST"`
	LegacyPort     int    `envconfig:"TRADEFAIR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRADEFAIR_DB_USER"`
	LegacyPassword string `envconfig:"TRADEFAIR_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRADEFAIR_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRADEFAIR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRADEFAIR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRADEFAIR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRADEFAIR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRADEFAIR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRADEFAIR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRADEFAIR_REDIS_ADDR"`
	Password     string        `envconfig:"TRADEFAIR_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRADEFAIR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRADEFAIR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRADEFAIR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRADEFAIR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRADEFAIR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRADEFAIR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRADEFAIR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRADEFAIR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRADEFAIR_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRADEFAIR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"TRADEFAIR_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRADEFAIR_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TRADEFAIR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRADEFAIR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"TRADEFAIR_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"TRADEFAIR_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
}

// WalletConfig tunes the hold window applied to freshly settled revenue.
type WalletConfig struct {
	HoldDays int `envconfig:"TRADEFAIR_WALLET_HOLD_DAYS" default:"7"`
}

// HoldWindow returns the hold duration applied to new debit_hold entries.
func (w WalletConfig) HoldWindow() time.Duration {
	days := w.HoldDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// PayoutsConfig tunes the payout worker cadence and vendor lease.
type PayoutsConfig struct {
	WorkerInterval time.Duration `envconfig:"TRADEFAIR_PAYOUTS_WORKER_INTERVAL" default:"15m"`
	LeaseTTL       time.Duration `envconfig:"TRADEFAIR_PAYOUTS_LEASE_TTL" default:"5m"`
}

// TransferConfig points at the bank-transfer network gateway.
type TransferConfig struct {
	BaseURL        string        `envconfig:"TRADEFAIR_TRANSFER_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"TRADEFAIR_TRANSFER_API_KEY" required:"true"`
	WebhookSecret  string        `envconfig:"TRADEFAIR_TRANSFER_WEBHOOK_SECRET" required:"true"`
	RequestTimeout time.Duration `envconfig:"TRADEFAIR_TRANSFER_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"TRADEFAIR_TRANSFER_MAX_RETRIES" default:"3"`
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
