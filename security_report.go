package crossauth

import "time"

// SecurityReport summarizes the security-relevant settings of a running Manager. It
// is logged at startup and safe to expose to operators.
type SecurityReport struct {
	SessionLifetime     time.Duration
	CacheTTL            time.Duration
	CacheShards         int
	StoreTimeout        time.Duration
	Argon2              PasswordConfigReport
	Roles               []Role
	DefaultRole         Role
	InvalidationEnabled bool
	AuditEnabled        bool
	MetricsEnabled      bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (m *Manager) SecurityReport() SecurityReport {
	if m == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SessionLifetime: m.config.Session.Lifetime,
		CacheTTL:        m.config.Cache.TTL,
		CacheShards:     m.config.Cache.Shards,
		StoreTimeout:    m.config.Session.StoreTimeout,
		Argon2: PasswordConfigReport{
			Memory:      m.config.Password.Memory,
			Time:        m.config.Password.Time,
			Parallelism: m.config.Password.Parallelism,
			SaltLength:  m.config.Password.SaltLength,
			KeyLength:   m.config.Password.KeyLength,
		},
		Roles:               m.roles.Roles(),
		DefaultRole:         m.roles.Default(),
		InvalidationEnabled: m.invalidator != nil,
		AuditEnabled:        m.config.Audit.Enabled,
		MetricsEnabled:      m.config.Metrics.Enabled,
	}
}
