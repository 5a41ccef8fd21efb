package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis failure returned by [Store].
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no live session exists for a token.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a stored session blob cannot be decoded.
var ErrCorrupt = errors.New("session corrupt")

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store. Session keys carry a Redis TTL equal to the
// remaining lifetime, and each user has an index set of their live tokens.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client. prefix sets the
// Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "cas"
	}
	return &Store{redis: redis, prefix: prefix}
}

func (s *Store) key(token string) string {
	return s.prefix + ":" + token
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists sess with the given TTL and adds it to the owner's index.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	if !ValidToken(sess.Token) {
		return errors.New("invalid session token")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	userKey := s.userKey(sess.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.Token), data, ttl)
		pipe.SAdd(ctx, userKey, sess.Token)
		// The index lives as long as its longest session.
		pipe.ExpireNX(ctx, userKey, ttl)
		pipe.ExpireGT(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the stored session for token. Missing keys yield [ErrNotFound]. Expiry
// against the caller's clock is left to the caller; Redis drops keys at their TTL.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.Token = token
	return sess, nil
}

// Delete removes the session for token and its index entry. It reports whether a
// session existed; deleting an unknown token is not an error.
func (s *Store) Delete(ctx context.Context, token string) (bool, error) {
	key := s.key(token)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Unreadable blob: drop the key, the index entry will age out with DeleteAllForUser.
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}

	existed, err := deleteSessionLua.Run(ctx, s.redis, []string{key, s.userKey(sess.UserID)}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return existed == 1, nil
}

// DeleteAllForUser removes every session indexed for userID and returns the tokens
// whose sessions were still live. Index entries left by expired sessions are
// dropped without being reported.
//
// The index is read before deletion, so a session created concurrently may survive
// the call. It will be caught by the next call or by its own expiry.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)

	tokens, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	dels := make([]*redis.IntCmd, len(tokens))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, token := range tokens {
			dels[i] = pipe.Del(ctx, s.key(token))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := make([]string, 0, len(tokens))
	for i, cmd := range dels {
		if cmd.Val() == 1 {
			removed = append(removed, tokens[i])
		}
	}
	return removed, nil
}

// ActiveTokens returns the tokens indexed for userID whose session keys still exist.
func (s *Store) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(tokens) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.Exists(ctx, s.key(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(tokens))
	for i, cmd := range cmds {
		if cmd.Val() == 1 {
			live = append(live, tokens[i])
		}
	}
	return live, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
