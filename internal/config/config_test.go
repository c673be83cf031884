package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadAppliesDefaults(t *testing.T) {
	writeConfig(t, `
ticketmaster:
  api_key: secret
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, "https://app.ticketmaster.com", cfg.TicketMaster.BaseURL)
	assert.Equal(t, 50, cfg.TicketMaster.Radius)
	assert.Equal(t, uint(4), cfg.TicketMaster.GeohashPrecision)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 1, cfg.Recommend.SearchConcurrency)
	assert.Equal(t, 120, cfg.Redis.MinIdleTime)
	assert.Equal(t, 5, cfg.Redis.MaxDeliveries)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	writeConfig(t, `
server:
  port: 9090
ticketmaster:
  api_key: from-file
database:
  driver: postgres
  host: db
redis:
  enabled: true
recommend:
  search_concurrency: 4
`)
	t.Setenv("TICKETMASTER_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.TicketMaster.APIKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN(), "host=db port=5432")
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 4, cfg.Recommend.SearchConcurrency)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	writeConfig(t, `
ticketmaster:
  api_key: secret
database:
  driver: mongodb
`)

	_, err := Load()
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLoadRequiresAPIKey(t *testing.T) {
	writeConfig(t, "server:\n  port: 8080\n")

	_, err := Load()
	assert.ErrorContains(t, err, "api_key")
}

func TestLoadRejectsNonPositiveMinIdleTime(t *testing.T) {
	writeConfig(t, `
ticketmaster:
  api_key: secret
redis:
  min_idle_time: 0
`)

	_, err := Load()
	assert.ErrorContains(t, err, "redis.min_idle_time")
}

func TestLoadRejectsNegativeMinIdleTimeFromEnv(t *testing.T) {
	writeConfig(t, `
ticketmaster:
  api_key: secret
`)
	t.Setenv("REDIS_MIN_IDLE_TIME", "-5")

	_, err := Load()
	assert.ErrorContains(t, err, "redis.min_idle_time")
}

func TestLoadRejectsNonPositiveMaxDeliveries(t *testing.T) {
	writeConfig(t, `
ticketmaster:
  api_key: secret
redis:
  max_deliveries: 0
`)

	_, err := Load()
	assert.ErrorContains(t, err, "redis.max_deliveries")
}
