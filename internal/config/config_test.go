package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, PolicySoft, cfg.Server.MessagePolicy)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Session.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Session.StoreTimeout)
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(mapLookup(map[string]string{
		"PORT":                       "8080",
		"CORS_ALLOWED_ORIGINS":       "https://a.example, https://b.example,",
		"CROSSAUTH_MESSAGE_POLICY":   " STRICT ",
		"CROSSAUTH_STORE":            "redis",
		"REDIS_ADDR":                 "127.0.0.1:6379",
		"CROSSAUTH_INVALIDATION":     "true",
		"CROSSAUTH_CACHE_TTL":        "30s",
		"CROSSAUTH_STORE_TIMEOUT":    "500ms",
		"CROSSAUTH_SESSION_LIFETIME": "not-a-duration",
		"LOG_FORMAT":                 "json",
		"CROSSAUTH_RATE_LIMIT_MAX":   "3",
		"CROSSAUTH_RATE_LIMIT":       "false",
	}))

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, PolicyStrict, cfg.Server.MessagePolicy)
	assert.Equal(t, StoreRedis, cfg.Store.Kind)
	assert.True(t, cfg.Store.Invalidation)
	assert.Equal(t, 30*time.Second, cfg.Session.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.StoreTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.Lifetime)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Server.RateLimit.MaxAttempts)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Server.MessagePolicy = "lenient" }},
		{"unknown store", func(c *Config) { c.Store.Kind = "mongo" }},
		{"redis without addr", func(c *Config) { c.Store.Kind = StoreRedis }},
		{"postgres without dsn", func(c *Config) { c.Store.Kind = StorePostgres }},
		{"invalidation without redis", func(c *Config) { c.Store.Invalidation = true }},
		{"empty cookie name", func(c *Config) { c.Cookie.Name = "" }},
		{"cache ttl above lifetime", func(c *Config) { c.Session.CacheTTL = 8 * 24 * time.Hour }},
		{"zero store timeout", func(c *Config) { c.Session.StoreTimeout = 0 }},
		{"store timeout not below cache ttl", func(c *Config) { c.Session.StoreTimeout = c.Session.CacheTTL }},
		{"short secret", func(c *Config) { c.Cookie.Secret = "too-short" }},
		{"release without secret", func(c *Config) { c.Server.Mode = "release" }},
		{"rate limit without budget", func(c *Config) { c.Server.RateLimit.MaxAttempts = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "crossauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  message_policy: strict
  cors_origins: ["https://app.example"]
cookie:
  domain: api.example
session:
  cache_ttl: 1m
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, PolicyStrict, cfg.Server.MessagePolicy)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "api.example", cfg.Cookie.Domain)
	assert.Equal(t, time.Minute, cfg.Session.CacheTTL)
	assert.Equal(t, "crossauth.session_token", cfg.Cookie.Name)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "crossauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  message_policy: strict\n"), 0o600))
	t.Setenv("CROSSAUTH_MESSAGE_POLICY", "soft")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, PolicySoft, cfg.Server.MessagePolicy)
}

func TestLoadReadsDotEnvLocal(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("CROSSAUTH_COOKIE_DOMAIN=env.example\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CROSSAUTH_COOKIE_DOMAIN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.example", cfg.Cookie.Domain)
}

func TestLoadRejectsMissingOrBrokenFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
