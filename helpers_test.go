package crossauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/crossauth/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testStore is an in-memory CredentialStore that counts lookups and can be made to
// fail or block.
type testStore struct {
	mu       sync.Mutex
	users    map[string]User
	byEmail  map[string]string
	sessions map[string]session.Session

	getSessionCalls atomic.Int64
	getUserCalls    atomic.Int64

	failWith error
	// failSessionWrites fails CreateSession only.
	failSessionWrites error
	// gate, when set, blocks GetSession after the record has been read.
	gate    chan struct{}
	entered chan struct{}
}

func newTestStore() *testStore {
	return &testStore{
		users:    make(map[string]User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]session.Session),
	}
}

func (s *testStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWith
}

func (s *testStore) setFail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *testStore) setFailSessionWrites(err error) {
	s.mu.Lock()
	s.failSessionWrites = err
	s.mu.Unlock()
}

func (s *testStore) CreateUser(_ context.Context, u User) (User, error) {
	if err := s.fail(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return User{}, ErrUserExists
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *testStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.getUserCalls.Add(1)
	if err := s.fail(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *testStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	if err := s.fail(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *testStore) CreateSession(_ context.Context, sess *session.Session) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSessionWrites != nil {
		return s.failSessionWrites
	}
	s.sessions[sess.Token] = *sess
	return nil
}

func (s *testStore) GetSession(ctx context.Context, token string) (*session.Session, error) {
	s.getSessionCalls.Add(1)
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	sess, ok := s.sessions[token]
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

func (s *testStore) DeleteSession(_ context.Context, token string) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *testStore) DeleteUserSessions(_ context.Context, userID string) ([]string, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			tokens = append(tokens, token)
			delete(s.sessions, token)
		}
	}
	return tokens, nil
}

func (s *testStore) setGate(gate chan struct{}, entered chan struct{}) {
	s.mu.Lock()
	s.gate = gate
	s.entered = entered
	s.mu.Unlock()
}

func (s *testStore) addUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
}

func (s *testStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// fakeInvalidator records publications and lets tests deliver peer revocations.
type fakeInvalidator struct {
	mu        sync.Mutex
	published []string
	handler   func(string)
}

func (f *fakeInvalidator) Publish(_ context.Context, token string) error {
	f.mu.Lock()
	f.published = append(f.published, token)
	f.mu.Unlock()
	return nil
}

func (f *fakeInvalidator) Subscribe(_ context.Context, fn func(string)) (func(), error) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeInvalidator) deliver(token string) {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	if fn != nil {
		fn(token)
	}
}

var errBackendDown = errors.New("connection refused")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

type managerFixture struct {
	manager *Manager
	store   *testStore
	clock   *fakeClock
	user    User
}

func newManagerFixture(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *managerFixture {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newTestStore()
	clock := newFakeClock()
	user := User{ID: "u-1", Email: "ada@example.com", Name: "Ada", Role: RoleUser}
	store.addUser(user)

	b := New().WithConfig(cfg).WithStore(store).WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(m.Close)

	return &managerFixture{manager: m, store: store, clock: clock, user: user}
}

func (f *managerFixture) issue(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.manager.Issue(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return sess
}
