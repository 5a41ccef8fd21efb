package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

const createUserScript = `
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

var createUserLua = redis.NewScript(createUserScript)

// userRecord is the stored form of a user. Unlike [crossauth.User] it keeps the
// password hash.
type userRecord struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Image         string    `json:"image,omitempty"`
	PasswordHash  string    `json:"password_hash"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRecord(u crossauth.User) userRecord {
	return userRecord{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
		PasswordHash:  u.PasswordHash,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (r userRecord) user() crossauth.User {
	return crossauth.User{
		ID:            r.ID,
		Email:         r.Email,
		Name:          r.Name,
		Role:          crossauth.Role(r.Role),
		EmailVerified: r.EmailVerified,
		Image:         r.Image,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Redis stores users as JSON documents with an email index, and sessions through a
// [session.Store]. Session keys expire with the session.
type Redis struct {
	rdb      redis.UniversalClient
	sessions *session.Store
	prefix   string
	now      func() time.Time
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix sets the key namespace for users and sessions. Default "cau".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithNow overrides the clock used to derive session key TTLs.
func WithNow(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis returns a store backed by rdb. It does not take ownership of rdb.
func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:    rdb,
		prefix: "cau",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sessions = session.NewStore(rdb, r.prefix+":sess")
	return r
}

// Sessions exposes the underlying session store.
func (r *Redis) Sessions() *session.Store {
	return r.sessions
}

func (r *Redis) userKey(id string) string {
	return r.prefix + ":user:" + id
}

func (r *Redis) emailKey(email string) string {
	return r.prefix + ":email:" + email
}

func storageErr(err error) error {
	if errors.Is(err, crossauth.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", crossauth.ErrStorage, err)
}

func (r *Redis) CreateUser(ctx context.Context, u crossauth.User) (crossauth.User, error) {
	data, err := json.Marshal(toRecord(u))
	if err != nil {
		return crossauth.User{}, err
	}

	created, err := createUserLua.Run(ctx, r.rdb, []string{r.emailKey(u.Email), r.userKey(u.ID)}, u.ID, data).Int64()
	if err != nil {
		return crossauth.User{}, storageErr(err)
	}
	if created == 0 {
		return crossauth.User{}, crossauth.ErrUserExists
	}
	return u, nil
}

func (r *Redis) GetUserByID(ctx context.Context, id string) (crossauth.User, error) {
	data, err := r.rdb.Get(ctx, r.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return crossauth.User{}, crossauth.ErrUserNotFound
		}
		return crossauth.User{}, storageErr(err)
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return crossauth.User{}, storageErr(fmt.Errorf("decode user %s: %w", id, err))
	}
	return rec.user(), nil
}

func (r *Redis) GetUserByEmail(ctx context.Context, email string) (crossauth.User, error) {
	id, err := r.rdb.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return crossauth.User{}, crossauth.ErrUserNotFound
		}
		return crossauth.User{}, storageErr(err)
	}
	return r.GetUserByID(ctx, id)
}

func (r *Redis) CreateSession(ctx context.Context, sess *session.Session) error {
	ttl := sess.Remaining(r.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	if err := r.sessions.Save(ctx, sess, ttl); err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return storageErr(err)
		}
		return err
	}
	return nil
}

func (r *Redis) GetSession(ctx context.Context, token string) (*session.Session, error) {
	sess, err := r.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, storageErr(err)
		}
		return nil, err
	}
	return sess, nil
}

func (r *Redis) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.sessions.Delete(ctx, token); err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *Redis) DeleteUserSessions(ctx context.Context, userID string) ([]string, error) {
	tokens, err := r.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return tokens, nil
}

var _ crossauth.CredentialStore = (*Redis)(nil)
