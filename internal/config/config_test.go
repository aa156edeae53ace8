package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Source.PageSize)
	assert.Equal(t, 3000, cfg.Summary.TokenBudget)
	assert.Equal(t, DefaultGuidelines, cfg.Summary.Guidelines)
	assert.True(t, cfg.Summary.ExcludeSelfGenerated)
	assert.Equal(t, "file", cfg.Cache.Kind)
	assert.Equal(t, 5*time.Minute, cfg.Model.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Schedule.Span)
	assert.Equal(t, "127.0.0.1:8787", cfg.Gateway.Addr())
}

func TestLoad_FromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  chat_id: "earn-users"
summary:
  token_budget: 1200
  timezone: America/Los_Angeles
model:
  timeout: 90s
cache:
  kind: sqlite
  shards: [a, b]
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "earn-users", cfg.Source.ChatID)
	assert.Equal(t, 1200, cfg.Summary.TokenBudget)
	assert.Equal(t, 90*time.Second, cfg.Model.Timeout)
	assert.Equal(t, "sqlite", cfg.Cache.Kind)
	assert.Equal(t, []string{"a", "b"}, cfg.Cache.Shards)

	loc, err := cfg.Summary.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Summary.TokenBudget)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("summary: [unclosed"), 0644))

	_, err := Load(configFile)
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CHATDIGEST_SUMMARY_TOKEN_BUDGET", "777")
	t.Setenv("CHATDIGEST_DELIVERY_KIND", "none")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 777, cfg.Summary.TokenBudget)
	assert.Equal(t, "none", cfg.Delivery.Kind)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero budget", func(c *Config) { c.Summary.TokenBudget = 0 }},
		{"zero page size", func(c *Config) { c.Source.PageSize = 0 }},
		{"zero cap", func(c *Config) { c.Source.FetchCap = 0 }},
		{"bad cache kind", func(c *Config) { c.Cache.Kind = "redis" }},
		{"bad delivery", func(c *Config) { c.Delivery.Kind = "email" }},
		{"bad timezone", func(c *Config) { c.Summary.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveTo(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveTo(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Summary.Guidelines, reloaded.Summary.Guidelines)
	assert.Equal(t, cfg.Schedule.Span, reloaded.Schedule.Span)
}
