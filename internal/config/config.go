package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/brinkadata/brinkadata-platform/internal/strictness"
)

// Environment names accepted in ENV.
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// devJWTSecret is only ever used when ENV=dev and JWT_SECRET is unset.
const devJWTSecret = "dev-secret-change-me"

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Version     string `envconfig:"VERSION" default:"dev"`
	Env         string `envconfig:"ENV" default:"dev"`

	JWTSecret        string        `envconfig:"JWT_SECRET" default:""`
	AccessTokenTTL   time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL  time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`
	ResumeCodeTTL    time.Duration `envconfig:"RESUME_CODE_TTL" default:"10m"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"12"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	SessionRetention time.Duration `envconfig:"SESSION_RETENTION" default:"720h"`

	RedisURL                string        `envconfig:"REDIS_URL" default:""`
	RateLimitCapacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"10"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"6s"`

	AMQPURL      string `envconfig:"AMQP_URL" default:""`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"brinkadata.events"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:8501"`
	TrustProxyHeaders  bool     `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
}

// Load reads an optional .env file, then configuration from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set; using the development secret")
		cfg.JWTSecret = devJWTSecret
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("ENV must be one of dev, staging, prod; got %q", c.Env)
	}

	if c.JWTSecret == "" && c.Env != EnvDev {
		return errors.New("JWT_SECRET is required outside dev")
	}

	ttls := map[string]time.Duration{
		"ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"RESUME_CODE_TTL":   c.ResumeCodeTTL,
		"SWEEP_INTERVAL":    c.SweepInterval,
	}
	for name, d := range ttls {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// IsDev reports whether dev-only behaviour (admin overrides, permissive guards) is enabled.
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// Strictness returns the policy for the configured environment: permissive in dev,
// strict everywhere else.
func (c *Config) Strictness() strictness.Policy {
	return strictness.ForEnv(c.Env)
}
