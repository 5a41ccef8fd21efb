package rate

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	expires time.Time
}

// Memory keeps counters in process memory.
type Memory struct {
	config Config
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]window
}

var _ Limiter = (*Memory)(nil)

// NewMemory returns an in-process limiter. now may be nil.
func NewMemory(cfg Config, now func() time.Time) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{config: cfg, now: now, counters: make(map[string]window)}, nil
}

// count returns the live counter for key. Callers hold mu.
func (l *Memory) count(key string, now time.Time) int {
	w, ok := l.counters[key]
	if !ok {
		return 0
	}
	if !now.Before(w.expires) {
		delete(l.counters, key)
		return 0
	}
	return w.count
}

func (l *Memory) CheckLogin(ctx context.Context, email, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, key := range l.config.keys(email, ip) {
		if l.count(key, now) >= l.config.MaxAttempts {
			return ErrRateLimited
		}
	}
	return nil
}

func (l *Memory) IncrementLogin(ctx context.Context, email, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limited := false
	for _, key := range l.config.keys(email, ip) {
		n := l.count(key, now)
		w := l.counters[key]
		if n == 0 {
			w.expires = now.Add(l.config.Window)
		}
		w.count = n + 1
		l.counters[key] = w
		if w.count >= l.config.MaxAttempts {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

func (l *Memory) ResetLogin(ctx context.Context, email, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.counters, emailKey(email))
	l.mu.Unlock()
	return nil
}
