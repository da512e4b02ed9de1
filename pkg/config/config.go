package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SUBWISE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SUBWISE_DB_DSN"
	EnvDBHost = "SUBWISE_DB_HOST"
	EnvDBUser = "SUBWISE_DB_USER"
	EnvDBName = "SUBWISE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Gateway      GatewayConfig
	Scheduler    SchedulerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUBWISE_APP_ENV" required:"true"`
	Port         string `envconfig:"SUBWISE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUBWISE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUBWISE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUBWISE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUBWISE_DB_DSN"`
	Driver string `envconfig:"SUBWISE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUBWISE_DB_HOST"`
	LegacyPort     int    `envconfig:"SUBWISE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUBWISE_DB_USER"`
	LegacyPassword string `envconfig:"SUBWISE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUBWISE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUBWISE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUBWISE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUBWISE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUBWISE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUBWISE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUBWISE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUBWISE_REDIS_ADDR"`
	Password     string        `envconfig:"SUBWISE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUBWISE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUBWISE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUBWISE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUBWISE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUBWISE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUBWISE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SUBWISE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SUBWISE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SUBWISE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig holds the billing provider credentials. Disabled swaps the
// adapter for a visibly non-functional stub and is rejected in prod.
type GatewayConfig struct {
	KeyID         string        `envconfig:"SUBWISE_GATEWAY_KEY_ID"`
	KeySecret     string        `envconfig:"SUBWISE_GATEWAY_KEY_SECRET"`
	WebhookSecret string        `envconfig:"SUBWISE_GATEWAY_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"SUBWISE_GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	Timeout       time.Duration `envconfig:"SUBWISE_GATEWAY_TIMEOUT" default:"15s"`
	Disabled      bool          `envconfig:"SUBWISE_GATEWAY_DISABLED" default:"false"`
}

func (g GatewayConfig) validate(app AppConfig) error {
	if g.Disabled {
		if app.IsProd() {
			return fmt.Errorf("gateway cannot be disabled in prod")
		}
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(g.KeyID) == "" {
		missing = append(missing, "SUBWISE_GATEWAY_KEY_ID")
	}
	if strings.TrimSpace(g.KeySecret) == "" {
		missing = append(missing, "SUBWISE_GATEWAY_KEY_SECRET")
	}
	if strings.TrimSpace(g.WebhookSecret) == "" {
		missing = append(missing, "SUBWISE_GATEWAY_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("gateway credentials required: %s (or set SUBWISE_GATEWAY_DISABLED outside prod)", strings.Join(missing, ", "))
	}
	return nil
}

type SchedulerConfig struct {
	Interval        time.Duration `envconfig:"SUBWISE_SCHEDULER_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"SUBWISE_SCHEDULER_LOCK_TTL" default:"10m"`
	RenewalWindow   time.Duration `envconfig:"SUBWISE_SCHEDULER_RENEWAL_WINDOW" default:"24h"`
	SweepBatchSize  int           `envconfig:"SUBWISE_SCHEDULER_SWEEP_BATCH" default:"250"`
	GraceDays       int           `envconfig:"SUBWISE_SCHEDULER_GRACE_DAYS" default:"7"`
	HaltedGraceDays int           `envconfig:"SUBWISE_SCHEDULER_HALTED_GRACE_DAYS" default:"14"`
	MetricsPort     string        `envconfig:"SUBWISE_SCHEDULER_METRICS_PORT" default:"9091"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SUBWISE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationsTopic string `envconfig:"SUBWISE_PUBSUB_NOTIFICATIONS_TOPIC"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SUBWISE_AUTO_MIGRATE" default:"false"`
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
