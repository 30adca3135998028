package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOCKET_POSTGRES_URL", "postgres://localhost/docket?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.Audit.CleanupSchedule)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Empty(t, cfg.Redis.Addr, "rate limiting is off unless redis is configured")
	assert.Empty(t, cfg.SeedFile)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DOCKET_POSTGRES_URL", "postgres://db:5432/docket")
	t.Setenv("DOCKET_PORT", "9999")
	t.Setenv("DOCKET_READ_TIMEOUT", "5s")
	t.Setenv("DOCKET_LOG_LEVEL", "debug")
	t.Setenv("DOCKET_METRICS_ENABLED", "false")
	t.Setenv("DOCKET_REDIS_ADDR", "redis:6379")
	t.Setenv("DOCKET_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("DOCKET_SEED_FILE", "/etc/docket/routemodels.yaml")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "/etc/docket/routemodels.yaml", cfg.SeedFile)
}

func TestValidate(t *testing.T) {
	t.Run("missing database URL", func(t *testing.T) {
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("health port clash", func(t *testing.T) {
		t.Setenv("DOCKET_POSTGRES_URL", "postgres://localhost/docket")
		t.Setenv("DOCKET_PORT", "8080")
		t.Setenv("DOCKET_HEALTH_PORT", "8080")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("non-positive retention", func(t *testing.T) {
		t.Setenv("DOCKET_POSTGRES_URL", "postgres://localhost/docket")
		t.Setenv("DOCKET_AUDIT_RETENTION_DAYS", "0")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
