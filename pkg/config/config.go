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
	JWT          JWTConfig
	Operator     OperatorConfig
	RateLimit    RateLimitConfig
	Grants       GrantsConfig
	Billing      BillingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
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
	Env          string `envconfig:"LUMORA_APP_ENV" required:"true"`
	Port         string `envconfig:"LUMORA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LUMORA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LUMORA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LUMORA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LUMORA_DB_DSN"`
	Driver string `envconfig:"LUMORA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LUMORA_DB_HOST"`
	Port     int    `envconfig:"LUMORA_DB_PORT" default:"5432"`
	User     string `envconfig:"LUMORA_DB_USER"`
	Password string `envconfig:"LUMORA_DB_PASSWORD"`
	Name     string `envconfig:"LUMORA_DB_NAME"`
	SSLMode  string `envconfig:"LUMORA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUMORA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUMORA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUMORA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUMORA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUMORA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LUMORA_REDIS_ADDR"`
	Password     string        `envconfig:"LUMORA_REDIS_PASSWORD"`
	DB           int           `envconfig:"LUMORA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LUMORA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUMORA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUMORA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUMORA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUMORA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"LUMORA_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"LUMORA_JWT_ISSUER" required:"true"`
}

// OperatorConfig guards the operator-only surface (grant runs, manual grants).
type OperatorConfig struct {
	Token string `envconfig:"LUMORA_OPERATOR_TOKEN"`
}

// RateLimitConfig drives the fixed-window limiter on the key-authenticated surface.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"LUMORA_RATE_LIMIT_WINDOW" default:"1m"`
}

type GrantsConfig struct {
	BatchLimit int `envconfig:"LUMORA_GRANTS_BATCH_LIMIT" default:"500"`
}

// BillingConfig covers the inbound surface of the payment processor:
// webhook signature verification only, this service never calls billing.
type BillingConfig struct {
	WebhookSecret string `envconfig:"LUMORA_BILLING_WEBHOOK_SECRET"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LUMORA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LUMORA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LUMORA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LUMORA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingSubscription string `envconfig:"LUMORA_PUBSUB_BILLING_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"LUMORA_BIGQUERY_DATASET" default:"lumora"`
	UsageEventTable string `envconfig:"LUMORA_BIGQUERY_USAGE_TABLE" default:"usage_events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range componentDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
