package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/tadash/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090

cache:
  backend: sqlite
  ttl: 15m
  sqlite:
    path: "/tmp/tadash/cache.db"

export:
  archive:
    enabled: true
    type: localfs
    path: "/tmp/tadash/archive"

warmup:
  enabled: true
  schedule: "0 * * * *"
  symbols: ["AAPL", "MSFT"]
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "/tmp/tadash/cache.db", cfg.Cache.SQLite.Path)
	assert.True(t, cfg.Export.Archive.Enabled)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Warmup.Symbols)

	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "3mo", cfg.Warmup.Period)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TADASH_TEST_API_KEY", "s3cret")
	cfgPath := writeConfig(t, `
server:
  api_key: "${TADASH_TEST_API_KEY}"
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.APIKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TADASH_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "yahoo", cfg.Provider.Name)
	assert.False(t, cfg.Warmup.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"defaults", func(c *Config) {}, nil},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"negative timeout", func(c *Config) { c.Provider.Timeout = -time.Second }, core.ErrConfigInvalid},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, core.ErrConfigInvalid},
		{"redis without addr", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.Redis.Addr = ""
		}, core.ErrConfigMissing},
		{"sqlite without path", func(c *Config) {
			c.Cache.Backend = "sqlite"
			c.Cache.SQLite.Path = ""
		}, core.ErrConfigMissing},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Minute }, core.ErrConfigInvalid},
		{"s3 archive without bucket", func(c *Config) {
			c.Export.Archive.Enabled = true
			c.Export.Archive.Type = "s3"
		}, core.ErrConfigMissing},
		{"unknown archive type", func(c *Config) {
			c.Export.Archive.Enabled = true
			c.Export.Archive.Type = "ftp"
		}, core.ErrConfigInvalid},
		{"disabled archive is not checked", func(c *Config) {
			c.Export.Archive.Type = "ftp"
		}, nil},
		{"bad warmup schedule", func(c *Config) {
			c.Warmup.Enabled = true
			c.Warmup.Symbols = []string{"AAPL"}
			c.Warmup.Schedule = "every tuesday"
		}, core.ErrConfigInvalid},
		{"warmup without symbols", func(c *Config) { c.Warmup.Enabled = true }, core.ErrConfigMissing},
		{"warmup bad interval", func(c *Config) {
			c.Warmup.Enabled = true
			c.Warmup.Symbols = []string{"AAPL"}
			c.Warmup.Interval = "5m"
		}, core.ErrConfigInvalid},
		{"warmup valid", func(c *Config) {
			c.Warmup.Enabled = true
			c.Warmup.Symbols = []string{"AAPL"}
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestConfig_CacheTTL(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.TTL = 0
	assert.Equal(t, time.Hour, cfg.CacheTTL())

	cfg.Cache.TTL = 5 * time.Minute
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
}
