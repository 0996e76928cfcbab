package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cuecast")
	t.Setenv("JWT_SECRET", " secret ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "secret", cfg.JWTSecret)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	assert.Equal(t, time.Hour, cfg.JWTTTL())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3*time.Second, cfg.ProfileReadyTimeout)
	assert.False(t, cfg.BootstrapAdmin())
}

func TestLoadSQLiteNeedsNoDatabaseURL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database url", map[string]string{"JWT_SECRET": "s"}, "DATABASE_URL is required"},
		{"missing secret", map[string]string{"DATABASE_URL": "postgres://x"}, "JWT_SECRET is required"},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo", "JWT_SECRET": "s"}, "STORE_DRIVER must be"},
		{"half bootstrap", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "s", "BOOTSTRAP_ADMIN_EMAIL": "a@example.com"}, "must be set together"},
		{"bad ttl", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "s", "JWT_TTL_MINUTES": "0"}, "JWT_TTL_MINUTES"},
		{"metrics on api port", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "s", "METRICS_ADDR": "0.0.0.0:8080"}, "must not share PORT"},
		{"metrics without port", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "s", "METRICS_ADDR": "localhost"}, "METRICS_ADDR"},
		{"unparseable duration", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "s", "REQUEST_TIMEOUT": "soon"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
