package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("SCAN_STALE_THRESHOLD", "2m")
	t.Setenv("SCAN_FFA_BATCH_SIZE", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "testhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 2*time.Minute, cfg.Scan.StaleThreshold)
	assert.Equal(t, 10, cfg.Scan.FFAGameBatchSize)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Scan.ClanBatchSize)
	assert.Equal(t, 5, cfg.Scan.PlayerBatchSize)
	assert.Equal(t, 40, cfg.Scan.FFAGameBatchSize)
	assert.Equal(t, 300*time.Second, cfg.Scan.StaleThreshold)
	assert.Equal(t, time.Minute, cfg.Scan.TickInterval)
	assert.Equal(t, "https://api.openfront.io", cfg.GameStats.BaseURL)
}

func TestLoadConfig_RejectsNonPositiveBatch(t *testing.T) {
	t.Setenv("SCAN_PLAYER_BATCH_SIZE", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_PLAYER_BATCH_SIZE")
}

func TestLoadConfig_StepBudgetMustBeShorterThanStaleThreshold(t *testing.T) {
	t.Setenv("SCAN_STALE_THRESHOLD", "60s")

	t.Setenv("SCAN_STEP_BUDGET", "60s")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_STEP_BUDGET")

	t.Setenv("SCAN_STEP_BUDGET", "90s")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("SCAN_STEP_BUDGET", "59s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 59*time.Second, cfg.Scan.StepBudget)
}

func TestPostgresConfig_URL(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: "5433", Database: "bot", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/bot?sslmode=disable", c.URL())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "200")
	t.Setenv("TEST_INT_INVALID", "invalid")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_DURATION", "30s")
	t.Setenv("TEST_DURATION_INVALID", "soon")

	assert.Equal(t, "default", getEnv("NONEXISTENT_KEY", "default"))
	assert.Equal(t, 200, getEnvAsInt("TEST_INT", 100))
	assert.Equal(t, 100, getEnvAsInt("TEST_INT_INVALID", 100))
	assert.Equal(t, 100, getEnvAsInt("TEST_INT_NOTSET", 100))
	assert.InDelta(t, 2.5, getEnvAsFloat("TEST_FLOAT", 1), 1e-9)
	assert.InDelta(t, 1.0, getEnvAsFloat("TEST_FLOAT_NOTSET", 1), 1e-9)
	assert.Equal(t, 30*time.Second, getEnvAsDuration("TEST_DURATION", 10*time.Second))
	assert.Equal(t, 10*time.Second, getEnvAsDuration("TEST_DURATION_INVALID", 10*time.Second))
}
