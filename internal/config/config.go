package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9090"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"cuecast.db"`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"cuecast-backend"`
	JWTTTLMinutes int    `envconfig:"JWT_TTL_MINUTES" default:"60"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat          string `envconfig:"LOG_FORMAT" default:"text"`

	RateLimitPerMinute  int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ProfileReadyTimeout time.Duration `envconfig:"PROFILE_READY_TIMEOUT" default:"3s"`

	BootstrapAdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`
	BootstrapAdminName     string `envconfig:"BOOTSTRAP_ADMIN_NAME" default:"Administrator"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTTTLMinutes <= 0 {
		return errors.New("JWT_TTL_MINUTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.MetricsAddr != "" {
		_, port, err := net.SplitHostPort(c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("METRICS_ADDR: %w", err)
		}
		if port == c.Port {
			return errors.New("METRICS_ADDR must not share PORT with the public API")
		}
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// JWTTTL is the session token lifetime.
func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// CORSOrigins splits the allowed origins list.
func (c Config) CORSOrigins() []string {
	return parseCSV(c.CORSAllowedOrigins)
}

// BootstrapAdmin reports whether a seed admin is configured.
func (c Config) BootstrapAdmin() bool {
	return c.BootstrapAdminEmail != ""
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
