package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every PantryLink variable.
const EnvPrefix = "pantrylink"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "PANTRYLINK_DB_DSN"
	EnvDBHost = "PANTRYLINK_DB_HOST"
	EnvDBUser = "PANTRYLINK_DB_USER"
	EnvDBName = "PANTRYLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Session       SessionConfig
	Password      PasswordConfig
	Tenancy       TenancyConfig
	Vouchers      VouchersConfig
	Stripe        StripeConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
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
	Env          string `envconfig:"PANTRYLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"PANTRYLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PANTRYLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PANTRYLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PANTRYLINK_DB_DSN"`
	Driver string `envconfig:"PANTRYLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PANTRYLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"PANTRYLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PANTRYLINK_DB_USER"`
	LegacyPassword string `envconfig:"PANTRYLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"PANTRYLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"PANTRYLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PANTRYLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PANTRYLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PANTRYLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PANTRYLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PANTRYLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PANTRYLINK_REDIS_ADDR"`
	Password     string        `envconfig:"PANTRYLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PANTRYLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PANTRYLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PANTRYLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PANTRYLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PANTRYLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PANTRYLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig controls the opaque cookie session lifetime.
type SessionConfig struct {
	TTL        time.Duration `envconfig:"PANTRYLINK_SESSION_TTL" default:"168h"`
	CookieName string        `envconfig:"PANTRYLINK_SESSION_COOKIE_NAME" default:"pantrylink_session"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PANTRYLINK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PANTRYLINK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PANTRYLINK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PANTRYLINK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PANTRYLINK_ARGON_KEY_LEN" default:"32"`
}

// TenancyConfig controls subdomain resolution against the platform apex.
type TenancyConfig struct {
	ApexDomain string `envconfig:"PANTRYLINK_APEX_DOMAIN" required:"true"`
	DevHost    string `envconfig:"PANTRYLINK_DEV_HOST" default:"localhost"`
}

type VouchersConfig struct {
	ValidDays  int    `envconfig:"PANTRYLINK_VOUCHERS_VALID_DAYS" default:"90"`
	CodePrefix string `envconfig:"PANTRYLINK_VOUCHERS_CODE_PREFIX" default:"PL"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PANTRYLINK_STRIPE_API_KEY"`
	Secret string `envconfig:"PANTRYLINK_STRIPE_SECRET"`
	Env    string `envconfig:"PANTRYLINK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"PANTRYLINK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"PANTRYLINK_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"PANTRYLINK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate          bool `envconfig:"PANTRYLINK_AUTO_MIGRATE" default:"false"`
	EnforceSubscriptions bool `envconfig:"PANTRYLINK_ENFORCE_SUBSCRIPTIONS" default:"true"`
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
