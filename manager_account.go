package crossauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/crossauth/password"
)

const maxNameLength = 128

// Login verifies email and password and issues a new session. Unknown emails and wrong
// passwords both yield [ErrInvalidCredentials] after comparable work.
func (m *Manager) Login(ctx context.Context, email, plaintext string) (Identity, error) {
	if m == nil || m.store == nil || m.passwordHash == nil {
		return Identity{}, ErrManagerNotReady
	}
	email = normalizeEmail(email)

	user, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			err = storageError(err)
			m.metricInc(MetricLoginFailure)
			m.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
			return Identity{}, err
		}
		m.burnVerify(plaintext)
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, nil)
		return Identity{}, ErrInvalidCredentials
	}

	ok, err := m.passwordHash.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
			m.logger.Warn("stored password hash is unusable", "user_id", user.ID, "error", err)
		}
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, nil)
		return Identity{}, ErrInvalidCredentials
	}

	sess, err := m.Issue(ctx, user.ID)
	if err != nil {
		m.metricInc(MetricLoginFailure)
		return Identity{}, err
	}

	user.PasswordHash = ""
	m.metricInc(MetricLoginSuccess)
	m.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sess.Token, nil, nil)
	return Identity{Session: *sess, User: user}, nil
}

// burnVerify spends one hash computation so unknown-email logins cost the same as
// wrong-password logins.
func (m *Manager) burnVerify(plaintext string) {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.passwordHash.Hash("crossauth-timing-equalizer")
	})
	if m.dummyHash != "" {
		_, _ = m.passwordHash.Verify(plaintext, m.dummyHash)
	}
}

// Register creates a user and issues their first session. The requested role must be
// in the Manager's role set; empty selects the default role.
//
// The two steps are not atomic. If the session cannot be issued the user is kept and
// Register returns the stored user with an error matching [ErrAccountWithoutSession]
// and the cause.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	if m == nil || m.store == nil || m.passwordHash == nil {
		return Identity{}, ErrManagerNotReady
	}

	fail := func(err error, reason string) (Identity, error) {
		m.metricInc(MetricRegisterFailure)
		m.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return Identity{}, err
	}

	email := normalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fail(ErrInvalidRegistration, "invalid_email")
	}
	name := strings.TrimSpace(in.Name)
	if len(name) > maxNameLength {
		return fail(ErrInvalidRegistration, "name_too_long")
	}

	role, err := m.roles.Parse(in.Role)
	if err != nil {
		return fail(err, "invalid_role")
	}

	hash, err := m.passwordHash.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fail(errors.Join(ErrInvalidRegistration, err), "password_policy")
		}
		return fail(err, "hash_failed")
	}

	now := m.clock.Now().UTC()
	user, err := m.store.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return fail(ErrUserExists, "duplicate")
		}
		return fail(storageError(err), "store")
	}

	user.PasswordHash = ""
	sess, err := m.Issue(ctx, user.ID)
	if err != nil {
		_, err = fail(errors.Join(ErrAccountWithoutSession, err), "session")
		return Identity{User: user}, err
	}

	m.metricInc(MetricRegisterSuccess)
	m.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, sess.Token, nil, nil)
	return Identity{Session: *sess, User: user}, nil
}

// HashPassword hashes plaintext with the Manager's Argon2id parameters.
func (m *Manager) HashPassword(plaintext string) (string, error) {
	if m == nil || m.passwordHash == nil {
		return "", ErrManagerNotReady
	}
	return m.passwordHash.Hash(plaintext)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
