package crossauth

import (
	"errors"
	"time"
)

// Config controls a [Manager]. Start from [DefaultConfig] and override fields.
type Config struct {
	Session  SessionConfig
	Cache    CacheConfig
	Password PasswordConfig
	Account  AccountConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and store access.
type SessionConfig struct {
	// Lifetime is the fixed time from issue to expiry. Cache hits never extend it.
	Lifetime time.Duration
	// StoreTimeout bounds a single store lookup made on behalf of Validate. The lookup
	// is shared between concurrent callers and outlives any one of them.
	StoreTimeout time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig sizes the process-local validation cache.
type CacheConfig struct {
	TTL    time.Duration
	Shards int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters used by Login and Register.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls the closed role set applied at registration.
type AccountConfig struct {
	DefaultRole Role
	ExtraRoles  []Role
}

// AuditConfig controls asynchronous audit event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the validate latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the reference configuration: seven-day sessions and a
// five-minute validation cache.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Lifetime:     7 * 24 * time.Hour,
			StoreTimeout: 2 * time.Second,
		},
		Cache: CacheConfig{
			TTL:    5 * time.Minute,
			Shards: 32,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Account: AccountConfig{
			DefaultRole: RoleUser,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Account.ExtraRoles != nil {
		out.Account.ExtraRoles = append([]Role(nil), cfg.Account.ExtraRoles...)
	}
	return out
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.StoreTimeout <= 0 {
		return errors.New("Session StoreTimeout must be > 0")
	}

	// Cache
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Cache.TTL > c.Session.Lifetime {
		return errors.New("Cache TTL must not exceed Session Lifetime")
	}
	if c.Cache.Shards < 0 {
		return errors.New("Cache Shards must be >= 0")
	}
	if c.Session.StoreTimeout >= c.Cache.TTL {
		return errors.New("Session StoreTimeout must be < Cache TTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Account
	if _, err := NewRoleSet(c.Account.DefaultRole, c.Account.ExtraRoles...); err != nil {
		return errors.New("Account ExtraRoles must be non-empty and DefaultRole must be a known role")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
