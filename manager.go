package crossauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/crossauth/cache"
	"github.com/MrEthical07/crossauth/password"
	"github.com/MrEthical07/crossauth/session"
)

// Manager issues, validates, and revokes sessions. Build one with [Builder]; methods
// are safe for concurrent use.
type Manager struct {
	config       Config
	store        CredentialStore
	cache        *cache.Cache[Identity]
	lookups      singleflight.Group
	roles        RoleSet
	passwordHash *password.Argon2
	invalidator  Invalidator
	clock        Clock
	logger       *slog.Logger
	metrics      *Metrics
	audit        *auditDispatcher

	dummyOnce sync.Once
	dummyHash string

	stopInvalidation func()
	closeOnce        sync.Once
}

// Close stops the revocation subscription, flushes audit events, and drops the cache.
// It does not close the credential store.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		if m.stopInvalidation != nil {
			m.stopInvalidation()
		}
		m.audit.Close()
		m.cache.Purge()
	})
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot copies the Manager's counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

// CachedSessions returns the number of live cache entries.
func (m *Manager) CachedSessions() int {
	if m == nil || m.cache == nil {
		return 0
	}
	return m.cache.Len()
}

// Roles returns the role set applied at registration.
func (m *Manager) Roles() RoleSet {
	return m.roles
}

// Config returns a copy of the Manager's configuration.
func (m *Manager) Config() Config {
	return cloneConfig(m.config)
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

// Issue creates and persists a session for userID. The client IP and user agent are
// taken from ctx (see [WithClientIP], [WithUserAgent]). Store failures wrap
// [ErrStorage].
func (m *Manager) Issue(ctx context.Context, userID string) (*session.Session, error) {
	if m == nil || m.store == nil {
		return nil, ErrManagerNotReady
	}
	if userID == "" {
		return nil, errors.New("crossauth: empty user id")
	}

	token, err := session.NewToken()
	if err != nil {
		m.metricInc(MetricSessionIssueFailure)
		return nil, err
	}

	now := m.clock.Now().UTC()
	sess := &session.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.Session.Lifetime),
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		m.metricInc(MetricSessionIssueFailure)
		err = storageError(err)
		m.emitAudit(ctx, auditEventSessionIssued, false, userID, token, err, nil)
		return nil, err
	}

	m.metricInc(MetricSessionIssued)
	m.emitAudit(ctx, auditEventSessionIssued, true, userID, token, nil, nil)
	return sess, nil
}

// Validate resolves token to its (session, user) pair.
//
// A cache hit within the TTL is returned without touching the store, as long as the
// session itself has not expired. Otherwise one store lookup is made, shared by every
// concurrent caller for the same token. Unknown, expired, or malformed tokens yield
// [ErrUnauthenticated]; store failures yield an error wrapping [ErrStorage]. If ctx
// is cancelled first, Validate returns ctx.Err() and the shared lookup finishes on its
// own, bounded by Config.Session.StoreTimeout.
func (m *Manager) Validate(ctx context.Context, token string) (Identity, error) {
	if m == nil || m.store == nil {
		return Identity{}, ErrManagerNotReady
	}

	if m.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { m.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	if !session.ValidToken(token) {
		m.metricInc(MetricValidateUnauthenticated)
		return Identity{}, ErrUnauthenticated
	}

	if entry, ok := m.cache.Get(token); ok {
		if !entry.Value.Session.Expired(m.clock.Now()) {
			m.metricInc(MetricCacheHit)
			m.metricInc(MetricValidateSuccess)
			return entry.Value, nil
		}
		m.cache.Evict(token)
		m.metricInc(MetricValidateUnauthenticated)
		return Identity{}, ErrUnauthenticated
	}
	m.metricInc(MetricCacheMiss)

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	ch := m.lookups.DoChan(token, func() (any, error) {
		return m.lookup(ctx, token)
	})

	select {
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			m.recordValidateFailure(ctx, token, res.Err)
			return Identity{}, res.Err
		}
		m.metricInc(MetricValidateSuccess)
		return res.Val.(Identity), nil
	}
}

// lookup runs once per token per miss window. It is detached from the caller's
// cancellation so that a single aborted request cannot fail the other waiters.
func (m *Manager) lookup(ctx context.Context, token string) (Identity, error) {
	ticket := m.cache.Reserve(token)
	defer m.cache.Release(ticket)

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.Session.StoreTimeout)
	defer cancel()

	sess, err := m.store.GetSession(lctx, token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return Identity{}, ErrUnauthenticated
		case errors.Is(err, session.ErrCorrupt):
			m.logger.Warn("dropping unreadable session record", slog.String("session_ref", sessionRef(token)))
			m.dropSession(lctx, token)
			return Identity{}, ErrUnauthenticated
		default:
			return Identity{}, storageError(err)
		}
	}

	if sess.Expired(m.clock.Now()) {
		m.dropSession(lctx, token)
		return Identity{}, ErrUnauthenticated
	}

	user, err := m.store.GetUserByID(lctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, storageError(err)
	}
	if !m.roles.Contains(user.Role) {
		m.logger.Warn("rejecting session for user with unknown role",
			slog.String("user_id", user.ID),
			slog.String("role", string(user.Role)),
		)
		return Identity{}, ErrUnauthenticated
	}
	user.PasswordHash = ""

	id := Identity{Session: *sess, User: user}
	m.cache.PutIfCurrent(token, id, ticket)
	return id, nil
}

// dropSession removes an expired or unreadable session. Failures are logged and
// otherwise ignored; the caller is already rejecting the token.
func (m *Manager) dropSession(ctx context.Context, token string) {
	if err := m.store.DeleteSession(ctx, token); err != nil {
		m.logger.Warn("failed to delete dead session",
			slog.String("session_ref", sessionRef(token)),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) recordValidateFailure(ctx context.Context, token string, err error) {
	if errors.Is(err, ErrUnauthenticated) {
		m.metricInc(MetricValidateUnauthenticated)
		return
	}
	m.metricInc(MetricValidateStorageError)
	m.logger.Error("session lookup failed",
		slog.String("session_ref", sessionRef(token)),
		slog.Any("error", err),
	)
	m.emitAudit(ctx, auditEventValidateFailure, false, "", token, err, nil)
}

// Revoke deletes the session for token from the store and evicts it from the local
// cache before returning, then notifies peers. Revoking an unknown or already revoked
// token is a no-op. The local entry is evicted even when the store delete fails.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if m == nil || m.store == nil {
		return ErrManagerNotReady
	}
	if !session.ValidToken(token) {
		return nil
	}

	var userID string
	if entry, ok := m.cache.Get(token); ok {
		userID = entry.Value.User.ID
	}

	if err := m.store.DeleteSession(ctx, token); err != nil {
		m.evictLocal(token)
		err = storageError(err)
		m.emitAudit(ctx, auditEventLogout, false, userID, token, err, nil)
		return err
	}
	m.evictLocal(token)
	m.publishRevocation(ctx, token)

	m.metricInc(MetricSessionRevoked)
	m.emitAudit(ctx, auditEventLogout, true, userID, token, nil, nil)
	return nil
}

// RevokeAllForUser revokes every session owned by userID and returns how many were
// removed from the store.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if m == nil || m.store == nil {
		return 0, ErrManagerNotReady
	}

	tokens, err := m.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		err = storageError(err)
		m.emitAudit(ctx, auditEventLogoutAll, false, userID, "", err, nil)
		return 0, err
	}

	for _, token := range tokens {
		m.evictLocal(token)
		m.publishRevocation(ctx, token)
	}
	// Entries whose tokens were missing from the store index.
	m.cache.EvictWhere(func(e cache.Entry[Identity]) bool {
		return e.Value.User.ID == userID
	})

	m.metricInc(MetricRevokeAll)
	m.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprint(len(tokens))}
	})
	return len(tokens), nil
}

// evictLocal drops token from the cache and detaches any in-flight lookup so later
// callers start a fresh one.
func (m *Manager) evictLocal(token string) {
	m.lookups.Forget(token)
	m.cache.Evict(token)
}

func (m *Manager) publishRevocation(ctx context.Context, token string) {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.Publish(ctx, token); err != nil {
		m.logger.Warn("failed to publish revocation; peers converge within cache TTL",
			slog.String("session_ref", sessionRef(token)),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) handleRemoteRevoke(token string) {
	if !session.ValidToken(token) {
		return
	}
	m.evictLocal(token)
	m.metricInc(MetricRemoteInvalidation)
}

func storageError(err error) error {
	if errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// sessionRef is a log-safe fingerprint of a token.
func sessionRef(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
