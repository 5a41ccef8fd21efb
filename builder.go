package crossauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/crossauth/cache"
	"github.com/MrEthical07/crossauth/password"
)

// Builder assembles a [Manager]. Configure it during initialization, call Build once,
// and discard it.
type Builder struct {
	config      Config
	store       CredentialStore
	invalidator Invalidator
	auditSink   AuditSink
	logger      *slog.Logger
	clock       Clock

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithInvalidator enables cross-process revocation fan-out.
func (b *Builder) WithInvalidator(inv Invalidator) *Builder {
	b.invalidator = inv
	return b
}

// WithAuditSink sets the audit sink. Events are only dispatched when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger used for operational messages.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides wall-clock time for both session expiry and cache TTL.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, creates the session cache, and subscribes to the
// invalidator if one was supplied. A Builder can be built once.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	roles, err := NewRoleSet(cfg.Account.DefaultRole, cfg.Account.ExtraRoles...)
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- SESSION CACHE --------
	sc, err := cache.New[Identity](cache.Config{
		TTL:    cfg.Cache.TTL,
		Shards: cfg.Cache.Shards,
		Clock:  clock,
	})
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}

	// -------- PASSWORD HASHER --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:       cfg,
		store:        b.store,
		cache:        sc,
		roles:        roles,
		passwordHash: ph,
		invalidator:  b.invalidator,
		clock:        clock,
		logger:       logger.With(slog.String("component", "crossauth")),
		metrics:      NewMetrics(cfg.Metrics),
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	// -------- INVALIDATION --------
	if b.invalidator != nil {
		stop, err := b.invalidator.Subscribe(context.Background(), m.handleRemoteRevoke)
		if err != nil {
			m.audit.Close()
			return nil, fmt.Errorf("subscribe to revocations: %w", err)
		}
		m.stopInvalidation = stop
	}

	b.built = true

	return m, nil
}
