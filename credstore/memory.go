package credstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

// Memory is an in-process credential store. Sessions past their expiry are kept until
// deleted; the Manager rejects and removes them on lookup.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]crossauth.User
	byEmail  map[string]string
	sessions map[string]session.Session
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]crossauth.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]session.Session),
	}
}

// CreateUser stores u. It returns [crossauth.ErrUserExists] if the ID or email is taken.
func (m *Memory) CreateUser(ctx context.Context, u crossauth.User) (crossauth.User, error) {
	if err := ctx.Err(); err != nil {
		return crossauth.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return crossauth.User{}, crossauth.ErrUserExists
	}
	if _, ok := m.users[u.ID]; ok {
		return crossauth.User{}, crossauth.ErrUserExists
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u, nil
}

// GetUserByID returns [crossauth.ErrUserNotFound] for an unknown id.
func (m *Memory) GetUserByID(ctx context.Context, id string) (crossauth.User, error) {
	if err := ctx.Err(); err != nil {
		return crossauth.User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return crossauth.User{}, crossauth.ErrUserNotFound
	}
	return u, nil
}

// GetUserByEmail looks up a user by exact email match.
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (crossauth.User, error) {
	if err := ctx.Err(); err != nil {
		return crossauth.User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return crossauth.User{}, crossauth.ErrUserNotFound
	}
	return m.users[id], nil
}

// CreateSession stores a copy of sess, replacing any session with the same token.
func (m *Memory) CreateSession(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Token] = *sess
	return nil
}

// GetSession returns a copy of the stored session, including expired ones.
func (m *Memory) GetSession(ctx context.Context, token string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes the session for token. Unknown tokens are not an error.
func (m *Memory) DeleteSession(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// DeleteUserSessions removes every session owned by userID and returns their tokens.
func (m *Memory) DeleteUserSessions(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []string
	for token, sess := range m.sessions {
		if sess.UserID == userID {
			tokens = append(tokens, token)
			delete(m.sessions, token)
		}
	}
	return tokens, nil
}

// PurgeExpired drops sessions that expired before now and returns how many were removed.
func (m *Memory) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

var _ crossauth.CredentialStore = (*Memory)(nil)
