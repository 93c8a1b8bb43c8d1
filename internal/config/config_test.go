package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/nairabhi/habitvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/habitvault")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "data/artifacts", cfg.Storage.Dir)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 64, cfg.Pipeline.QueueSize)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.StageTimeout)
	assert.Equal(t,
		[]time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute},
		cfg.Pipeline.RetryDelays)
	assert.Empty(t, cfg.Pipeline.EncryptKey)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HABITVAULT_PORT", "9191")
	t.Setenv("HABITVAULT_ENV", "production")
	t.Setenv("PIPELINE_WORKERS", "8")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "90s")
	t.Setenv("PIPELINE_RETRY_DELAYS", "10s, 1m,5m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.StageTimeout)
	assert.Equal(t, []time.Duration{10 * time.Second, time.Minute, 5 * time.Minute}, cfg.Pipeline.RetryDelays)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("HABITVAULT_PORT", "not-a-number")
	t.Setenv("PIPELINE_STAGE_TIMEOUT", "soonish")
	t.Setenv("PIPELINE_RETRY_DELAYS", "10s,eventually")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.StageTimeout)
	assert.Len(t, cfg.Pipeline.RetryDelays, 4, "bad delay list falls back to the default table")
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/habitvault")
	t.Setenv("REDIS_URL", "")
	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_ValidatesPipeline(t *testing.T) {
	setRequired(t)

	t.Run("workers below one", func(t *testing.T) {
		t.Setenv("PIPELINE_WORKERS", "0")
		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PIPELINE_WORKERS")
	})

	t.Run("decreasing delay table", func(t *testing.T) {
		t.Setenv("PIPELINE_RETRY_DELAYS", "5m,30s")
		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-decreasing")
	})

	t.Run("plateau is allowed", func(t *testing.T) {
		t.Setenv("PIPELINE_RETRY_DELAYS", "30s,2m,10m,10m")
		_, err := config.Load()
		assert.NoError(t, err)
	})
}

func TestLoad_EncryptKeyLength(t *testing.T) {
	setRequired(t)

	t.Setenv("PIPELINE_ENCRYPT_KEY", "tooshort")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	t.Setenv("PIPELINE_ENCRYPT_KEY", strings.Repeat("k", 32))
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Pipeline.EncryptKey, 32)
}
