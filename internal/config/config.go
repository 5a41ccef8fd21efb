// Package config loads the crossauth server configuration from an optional YAML file,
// a .env.local file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/crossauth/cookie"
)

// MessagePolicy decides what POST /api/message does for anonymous callers.
type MessagePolicy string

const (
	// PolicySoft answers 200 with a "Not Authenticated" payload.
	PolicySoft MessagePolicy = "soft"
	// PolicyStrict answers 401.
	PolicyStrict MessagePolicy = "strict"
)

// StoreKind selects the credential store backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Cookie  CookieConfig  `yaml:"cookie"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":3001".
	Addr string `yaml:"addr"`
	// Mode is the gin mode (debug, release, test).
	Mode string `yaml:"mode"`
	// CORSOrigins are the allowed credentialed origins.
	CORSOrigins []string `yaml:"cors_origins"`
	// MessagePolicy controls anonymous POST /api/message.
	MessagePolicy MessagePolicy `yaml:"message_policy"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit throttles failed sign-in attempts.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures sign-in throttling.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Kind        StoreKind `yaml:"kind"`
	RedisAddr   string    `yaml:"redis_addr"`
	PostgresDSN string    `yaml:"postgres_dsn"`
	// Invalidation publishes revocations on Redis when RedisAddr is set.
	Invalidation bool `yaml:"invalidation"`
}

// CookieConfig configures the session cookie.
type CookieConfig struct {
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
	// Secret signs cookie values. Empty leaves them unsigned.
	Secret string `yaml:"secret"`
}

// SessionConfig overrides the Manager session settings.
type SessionConfig struct {
	Lifetime time.Duration `yaml:"lifetime"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// StoreTimeout bounds each store lookup behind a cache miss. It must stay
	// below CacheTTL.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Audit routes auth audit events to the logger.
	Audit bool `yaml:"audit"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3001",
			Mode:            "debug",
			CORSOrigins:     []string{"http://localhost:3000"},
			MessagePolicy:   PolicySoft,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:     true,
				MaxAttempts: 10,
				Window:      15 * time.Minute,
			},
		},
		Store: StoreConfig{
			Kind: StoreMemory,
		},
		Cookie: CookieConfig{
			Name: "crossauth.session_token",
		},
		Session: SessionConfig{
			Lifetime:     7 * 24 * time.Hour,
			CacheTTL:     5 * time.Minute,
			StoreTimeout: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Audit:  true,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	loadEnvFile()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}
	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	setString(lookup, "CROSSAUTH_ADDR", &c.Server.Addr)
	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	setString(lookup, "GIN_MODE", &c.Server.Mode)
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("CROSSAUTH_MESSAGE_POLICY"); ok && v != "" {
		c.Server.MessagePolicy = MessagePolicy(strings.ToLower(strings.TrimSpace(v)))
	}
	setDuration(lookup, "CROSSAUTH_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	setBool(lookup, "CROSSAUTH_RATE_LIMIT", &c.Server.RateLimit.Enabled)
	setInt(lookup, "CROSSAUTH_RATE_LIMIT_MAX", &c.Server.RateLimit.MaxAttempts)
	setDuration(lookup, "CROSSAUTH_RATE_LIMIT_WINDOW", &c.Server.RateLimit.Window)

	if v, ok := lookup("CROSSAUTH_STORE"); ok && v != "" {
		c.Store.Kind = StoreKind(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(lookup, "REDIS_ADDR", &c.Store.RedisAddr)
	setString(lookup, "DATABASE_URL", &c.Store.PostgresDSN)
	setBool(lookup, "CROSSAUTH_INVALIDATION", &c.Store.Invalidation)

	setString(lookup, "CROSSAUTH_COOKIE_NAME", &c.Cookie.Name)
	setString(lookup, "CROSSAUTH_COOKIE_DOMAIN", &c.Cookie.Domain)
	setString(lookup, "CROSSAUTH_SECRET", &c.Cookie.Secret)

	setDuration(lookup, "CROSSAUTH_SESSION_LIFETIME", &c.Session.Lifetime)
	setDuration(lookup, "CROSSAUTH_CACHE_TTL", &c.Session.CacheTTL)
	setDuration(lookup, "CROSSAUTH_STORE_TIMEOUT", &c.Session.StoreTimeout)

	setString(lookup, "LOG_LEVEL", &c.Log.Level)
	setString(lookup, "LOG_FORMAT", &c.Log.Format)
	setBool(lookup, "LOG_AUDIT", &c.Log.Audit)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Server.MessagePolicy {
	case PolicySoft, PolicyStrict:
	default:
		return fmt.Errorf("server.message_policy must be soft or strict, got %q", c.Server.MessagePolicy)
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis store")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.kind must be memory, redis or postgres, got %q", c.Store.Kind)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.MaxAttempts <= 0 || c.Server.RateLimit.Window <= 0) {
		return errors.New("server.rate_limit needs max_attempts > 0 and window > 0")
	}
	if c.Store.Invalidation && c.Store.RedisAddr == "" {
		return errors.New("store.invalidation requires store.redis_addr")
	}
	if c.Cookie.Name == "" {
		return errors.New("cookie.name is required")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session.lifetime must be > 0")
	}
	if c.Session.CacheTTL <= 0 || c.Session.CacheTTL > c.Session.Lifetime {
		return errors.New("session.cache_ttl must be > 0 and <= session.lifetime")
	}
	if c.Session.StoreTimeout <= 0 || c.Session.StoreTimeout >= c.Session.CacheTTL {
		return errors.New("session.store_timeout must be > 0 and < session.cache_ttl")
	}
	if c.Cookie.Secret != "" && len(c.Cookie.Secret) < cookie.MinSecretBytes {
		return fmt.Errorf("cookie.secret must be at least %d bytes", cookie.MinSecretBytes)
	}
	if c.Server.Mode == "release" && c.Cookie.Secret == "" {
		return errors.New("cookie.secret is required in release mode")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

// Unparseable values leave the current setting in place.
func setDuration(lookup lookupFunc, key string, dst *time.Duration) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func setInt(lookup lookupFunc, key string, dst *int) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(lookup lookupFunc, key string, dst *bool) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
