package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "swift", cfg.Routing.FastBackend)
	assert.Equal(t, "atlas", cfg.Routing.QualityBackend)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.Equal(t, "memory", cfg.Persistence.Type)
	assert.Equal(t, 120*time.Second, cfg.Gateway.RequestTimeout)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
routing:
  long_form_runes: 500
swift:
  base_url: "http://swift.internal:8081"
  model: "swift-pro"
breaker:
  threshold: 3
  cooldown: 10s
persistence:
  type: redis
  redis:
    addr: "redis.internal:6379"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 500, cfg.Routing.LongFormRunes)
	assert.Equal(t, "http://swift.internal:8081", cfg.Swift.BaseURL)
	assert.Equal(t, "swift-pro", cfg.Swift.Model)
	assert.Equal(t, 3, cfg.Breaker.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, "redis", cfg.Persistence.Type)
	assert.Equal(t, "redis.internal:6379", cfg.Persistence.Redis.Addr)

	// untouched sections keep their defaults
	assert.Equal(t, "atlas-large", cfg.Atlas.Model)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/no/such/file.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIPFLOW_SERVER_ADDR", ":7070")
	t.Setenv("TRIPFLOW_BREAKER_THRESHOLD", "2")
	t.Setenv("TRIPFLOW_BREAKER_COOLDOWN", "45s")
	t.Setenv("TRIPFLOW_METRICS_ENABLED", "false")
	t.Setenv("TRIPFLOW_ROUTING_PLANNING_KEYWORDS", "itinerary, road trip")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Breaker.Threshold)
	assert.Equal(t, 45*time.Second, cfg.Breaker.Cooldown)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"itinerary", "road trip"}, cfg.Routing.PlanningKeywords)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("TRIPFLOW_SERVER_ADDR", ":6060")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_SERVER_ADDR", ":5050")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, ":5050", cfg.Server.Addr)
}

func TestValidatorRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			c.Auth.Secret = "filled-in"
			return c.Validate()
		}).
		Load()
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Secret = "s"
	assert.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.Auth.Secret = "s"
	bad.Persistence.Type = "carrier-pigeon"
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence type")

	missing := DefaultConfig()
	missing.Auth.Secret = "s"
	missing.Swift.BaseURL = ""
	assert.Error(t, missing.Validate())
}
