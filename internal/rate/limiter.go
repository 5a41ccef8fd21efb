package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	// MaxAttempts is the number of failures allowed per window.
	MaxAttempts int
	// Window is how long a counter lives after its first failure.
	Window time.Duration
	// PerIP also counts failures per client IP.
	PerIP bool
}

// DefaultConfig allows 10 failures per 15 minutes per email and per IP.
func DefaultConfig() Config {
	return Config{MaxAttempts: 10, Window: 15 * time.Minute, PerIP: true}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("rate: MaxAttempts must be > 0")
	}
	if c.Window <= 0 {
		return errors.New("rate: Window must be > 0")
	}
	return nil
}

// Limiter is the sign-in throttle used by the HTTP layer.
type Limiter interface {
	// CheckLogin returns ErrRateLimited when email or ip is over budget.
	CheckLogin(ctx context.Context, email, ip string) error
	// IncrementLogin records one failed attempt.
	IncrementLogin(ctx context.Context, email, ip string) error
	// ResetLogin clears the counters after a successful sign-in.
	ResetLogin(ctx context.Context, email, ip string) error
}

func emailKey(email string) string {
	return "crl:" + strings.ToLower(strings.TrimSpace(email))
}

func ipKey(ip string) string {
	return "crli:" + ip
}

func (c Config) keys(email, ip string) []string {
	keys := []string{emailKey(email)}
	if c.PerIP && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	return keys
}

// Redis keeps counters in Redis so every instance sees the same budget.
type Redis struct {
	redis  redis.UniversalClient
	config Config
}

var _ Limiter = (*Redis)(nil)

// NewRedis returns a Redis-backed limiter.
func NewRedis(rdb redis.UniversalClient, cfg Config) (*Redis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Redis{redis: rdb, config: cfg}, nil
}

func (l *Redis) CheckLogin(ctx context.Context, email, ip string) error {
	for _, key := range l.config.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

func (l *Redis) IncrementLogin(ctx context.Context, email, ip string) error {
	limited := false
	for _, key := range l.config.keys(email, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears only the email counter. The IP counter keeps running so one
// valid account cannot be used to reset an IP that is guessing others.
func (l *Redis) ResetLogin(ctx context.Context, email, _ string) error {
	if err := l.redis.Del(ctx, emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// Attempts returns the failure count recorded for email.
func (l *Redis) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, emailKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return int(max(count, 0)), nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	// Fixed window: only the first hit sets the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
	}
	return count, nil
}
