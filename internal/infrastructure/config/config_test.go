package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/timebank/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StoragePostgres, cfg.StorageDriver)
	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.ConfirmLease)
	assert.Equal(t, 60*time.Second, cfg.CompleteLease)
	assert.Equal(t, 5*time.Second, cfg.BookingHold)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.DefaultHourlyRate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "timebank:transactions", cfg.TransactionStream)
	assert.Equal(t, 7*24*time.Hour, cfg.OutboxRetention)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("COMPLETE_LEASE", "2m")
	t.Setenv("INITIAL_GRANT", "7.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "redis://example", cfg.RedisURL)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.DatabaseTimeout)
	assert.Equal(t, "top-secret", cfg.JWTSecret)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, 2*time.Minute, cfg.CompleteLease)
	assert.True(t, cfg.InitialGrant.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			StorageDriver:     config.StorageMemory,
			DatabaseMaxConns:  5,
			DatabaseMinConns:  1,
			ConfirmLease:      15 * time.Second,
			CompleteLease:     time.Minute,
			BookingHold:       5 * time.Second,
			InitialGrant:      decimal.NewFromInt(5),
			DefaultHourlyRate: decimal.NewFromInt(1),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.StorageDriver = "sqlite" }, "unknown STORAGE_DRIVER"},
		{"postgres without url", func(c *config.Config) { c.StorageDriver = config.StoragePostgres }, "DATABASE_URL"},
		{"auth without secret", func(c *config.Config) { c.AuthEnabled = true }, "JWT_SECRET"},
		{"complete lease too short", func(c *config.Config) { c.CompleteLease = time.Second }, "COMPLETE_LEASE"},
		{"zero hold", func(c *config.Config) { c.BookingHold = 0 }, "BOOKING_HOLD"},
		{"zero rate", func(c *config.Config) { c.DefaultHourlyRate = decimal.Zero }, "DEFAULT_HOURLY_RATE"},
		{"negative grant", func(c *config.Config) { c.InitialGrant = decimal.NewFromInt(-1) }, "INITIAL_GRANT"},
		{"pool sizes", func(c *config.Config) { c.DatabaseMinConns = 10 }, "DATABASE_MIN_CONNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
