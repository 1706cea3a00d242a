package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
)

const (
	RefreshStoreSQLite = "sqlite"
	RefreshStoreRedis  = "redis"
)

// Config holds all environment-based configuration for gatekeeper.
type Config struct {
	Env                 string        `env:"ENV" envDefault:"dev"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat           string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is believed.
	// Empty believes every peer.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	DatabaseFile string `env:"DATABASE_FILE" envDefault:"gatekeeper.db"`

	// RefreshStore selects where refresh credentials live: sqlite or redis.
	RefreshStore  string `env:"REFRESH_STORE" envDefault:"sqlite"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// TokenSigningKey is a base64 HS256 key of at least 32 bytes.
	TokenSigningKey string        `env:"TOKEN_SIGNING_KEY"`
	TokenIssuer     string        `env:"TOKEN_ISSUER" envDefault:"gatekeeper"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	DefaultCapacity        int     `env:"RATELIMIT_DEFAULT_CAPACITY" envDefault:"100"`
	DefaultRefillPerMinute float64 `env:"RATELIMIT_DEFAULT_REFILL_PER_MINUTE" envDefault:"100"`
	AuthCapacity           int     `env:"RATELIMIT_AUTH_CAPACITY" envDefault:"20"`
	AuthRefillPerMinute    float64 `env:"RATELIMIT_AUTH_REFILL_PER_MINUTE" envDefault:"10"`
	SensitiveCapacity      int     `env:"RATELIMIT_SENSITIVE_CAPACITY" envDefault:"10"`
	SensitiveRefill        float64 `env:"RATELIMIT_SENSITIVE_REFILL_PER_MINUTE" envDefault:"5"`

	BucketIdleTTL    time.Duration `env:"RATELIMIT_IDLE_TTL" envDefault:"30m"`
	FailureThreshold int           `env:"THROTTLE_FAILURE_THRESHOLD" envDefault:"5"`
	BlockDuration    time.Duration `env:"THROTTLE_BLOCK_DURATION" envDefault:"30m"`
	FailureWindow    time.Duration `env:"THROTTLE_FAILURE_WINDOW" envDefault:"1h"`

	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieSameSite    string `env:"COOKIE_SAMESITE" envDefault:"lax"`
	CookiePartitioned bool   `env:"COOKIE_PARTITIONED" envDefault:"false"`

	AuditBufferSize int `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	AuditWorkers    int `env:"AUDIT_WORKERS" envDefault:"2"`

	// AuditSigningKey defaults to the token signing key.
	AuditSigningKey string `env:"AUDIT_SIGNING_KEY"`

	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"5m"`

	SentryDSN string `env:"SENTRY_DSN"`

	// Optional bootstrap admin, created only when no users exist.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	return ParseConfig(env.Options{})
}

// ParseConfig parses and validates configuration with explicit options.
// Tests pass Environment to avoid touching the process environment.
func ParseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.signingKey(); err != nil {
		return err
	}
	if c.AuditSigningKey != "" {
		if _, err := jwtx.DecodeKey(c.AuditSigningKey); err != nil {
			return fmt.Errorf("AUDIT_SIGNING_KEY: %w", err)
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL and REFRESH_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}

	switch c.RefreshStore {
	case RefreshStoreSQLite:
	case RefreshStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required when REFRESH_STORE=redis")
		}
	default:
		return fmt.Errorf("REFRESH_STORE must be %q or %q", RefreshStoreSQLite, RefreshStoreRedis)
	}

	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	if _, err := c.cookieConfig(); err != nil {
		return err
	}
	if err := c.rateLimitConfig().Validate(); err != nil {
		return err
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

// signingKey decodes TOKEN_SIGNING_KEY. Failures wrap jwtx.ErrSigning.
func (c *Config) signingKey() ([]byte, error) {
	key, err := jwtx.DecodeKey(c.TokenSigningKey)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_SIGNING_KEY: %w", err)
	}
	return key, nil
}

func (c *Config) auditKey() ([]byte, error) {
	if c.AuditSigningKey == "" {
		return c.signingKey()
	}
	return jwtx.DecodeKey(c.AuditSigningKey)
}

func (c *Config) cookieConfig() (httpx.CookieConfig, error) {
	sameSite, err := httpx.ParseSameSite(c.CookieSameSite)
	if err != nil {
		return httpx.CookieConfig{}, fmt.Errorf("COOKIE_SAMESITE: %w", err)
	}
	return httpx.CookieConfig{
		Secure:      c.CookieSecure || sameSite == http.SameSiteNoneMode,
		SameSite:    sameSite,
		Partitioned: c.CookiePartitioned,
	}, nil
}

func (c *Config) rateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.Default = ratelimit.TierConfig{Capacity: c.DefaultCapacity, RefillPerMinute: c.DefaultRefillPerMinute}
	cfg.Auth = ratelimit.TierConfig{Capacity: c.AuthCapacity, RefillPerMinute: c.AuthRefillPerMinute}
	cfg.Sensitive = ratelimit.TierConfig{Capacity: c.SensitiveCapacity, RefillPerMinute: c.SensitiveRefill}
	cfg.IdleTTL = c.BucketIdleTTL
	cfg.FailureThreshold = c.FailureThreshold
	cfg.BlockDuration = c.BlockDuration
	cfg.FailureWindow = c.FailureWindow
	return cfg
}
