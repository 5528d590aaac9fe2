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
	DB           DBConfig
	Redis        RedisConfig
	Gateway      GatewayConfig
	Pricing      PricingConfig
	Admin        AdminConfig
	PollLimit    PollLimitConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KEYDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"KEYDROP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KEYDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KEYDROP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KEYDROP_DB_DSN"`
	Driver string `envconfig:"KEYDROP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KEYDROP_DB_HOST"`
	LegacyPort     int    `envconfig:"KEYDROP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KEYDROP_DB_USER"`
	LegacyPassword string `envconfig:"KEYDROP_DB_PASSWORD"`
	LegacyName     string `envconfig:"KEYDROP_DB_NAME"`
	LegacySSLMode  string `envconfig:"KEYDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KEYDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KEYDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KEYDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KEYDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KEYDROP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KEYDROP_REDIS_ADDR"`
	Password     string        `envconfig:"KEYDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"KEYDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KEYDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KEYDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KEYDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KEYDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KEYDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig carries the deposit gateway endpoint and credentials.
type GatewayConfig struct {
	BaseURL     string        `envconfig:"KEYDROP_GATEWAY_BASE_URL" required:"true"`
	APIKey      string        `envconfig:"KEYDROP_GATEWAY_API_KEY" required:"true"`
	CallTimeout time.Duration `envconfig:"KEYDROP_GATEWAY_CALL_TIMEOUT" default:"10s"`
}

// PricingConfig holds the default gateway fee parameters. The payment-config
// store can override both at runtime.
type PricingConfig struct {
	FlatFeeCents   int64  `envconfig:"KEYDROP_PRICING_FLAT_FEE_CENTS" default:"200"`
	RatePercent    string `envconfig:"KEYDROP_PRICING_RATE_PERCENT" default:"0.7"`
	SurchargeCents int64  `envconfig:"KEYDROP_PRICING_MAX_SURCHARGE_CENTS" default:"150"`
}

// AdminConfig is the shared static operator credential. The storefront has a
// single operator; there is no per-user session model.
type AdminConfig struct {
	Password string `envconfig:"KEYDROP_ADMIN_PASSWORD" required:"true"`
}

// FeatureFlagsConfig toggles optional runtime behavior.
type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KEYDROP_FEATURE_AUTO_MIGRATE" default:"false"`
}

// PollLimitConfig throttles client-driven status refresh polling.
type PollLimitConfig struct {
	Window time.Duration `envconfig:"KEYDROP_POLL_LIMIT_WINDOW" default:"10s"`
	Limit  int           `envconfig:"KEYDROP_POLL_LIMIT_COUNT" default:"5"`
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
