package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultTTL matches the 5-minute cookie cache window of the reference deployment.
	DefaultTTL = 5 * time.Minute
	// DefaultShards is used when Config.Shards is zero.
	DefaultShards = 32

	// compactMin is the consumed queue prefix worth reclaiming.
	compactMin = 32
)

// ErrInvalidConfig is returned by [New] for a non-positive TTL or shard count.
var ErrInvalidConfig = errors.New("invalid cache config")

// Clock abstracts wall-clock time so expiry can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config controls cache sizing and expiry.
type Config struct {
	TTL    time.Duration
	Shards int
	Clock  Clock
}

// Entry is one cached value together with the token it is keyed by and the time it
// was inserted.
type Entry[V any] struct {
	Token      string
	Value      V
	InsertedAt time.Time
}

// Ticket orders a lookup against concurrent evictions of the same token.
type Ticket uint64

// tombstone records the eviction sequence of a token. The queue holds tombstones in
// eviction order; a queued one whose seq no longer matches the map was superseded by
// a later eviction of the same token.
type tombstone struct {
	token string
	seq   uint64
}

type shard[V any] struct {
	mu         sync.RWMutex
	entries    map[string]Entry[V]
	tombstones map[string]uint64
	queue      []tombstone
	head       int
}

// Cache is a sharded TTL map keyed by session token.
type Cache[V any] struct {
	ttl    time.Duration
	clock  Clock
	shards []*shard[V]
	mask   uint64
	seq    atomic.Uint64

	// ticketMu orders ticket issue against the prune floor read by evictions.
	ticketMu    sync.Mutex
	outstanding map[Ticket]struct{}
}

// New builds a cache. Shards is rounded up to the next power of two.
func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.TTL <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.Shards < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.Shards == 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	n := 1
	for n < cfg.Shards {
		n <<= 1
	}

	c := &Cache[V]{
		ttl:         cfg.TTL,
		clock:       cfg.Clock,
		shards:      make([]*shard[V], n),
		mask:        uint64(n - 1),
		outstanding: make(map[Ticket]struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{
			entries:    make(map[string]Entry[V]),
			tombstones: make(map[string]uint64),
		}
	}
	return c, nil
}

// TTL returns the configured maximum entry age.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

func (c *Cache[V]) shardFor(token string) *shard[V] {
	return c.shards[xxhash.Sum64String(token)&c.mask]
}

func (c *Cache[V]) fresh(e Entry[V], now time.Time) bool {
	return now.Sub(e.InsertedAt) < c.ttl
}

// Get returns the entry for token, or false if it was never put, was evicted, or has
// reached the TTL. Stale entries are dropped on the way out.
func (c *Cache[V]) Get(token string) (Entry[V], bool) {
	s := c.shardFor(token)
	now := c.clock.Now()

	s.mu.RLock()
	e, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok {
		return Entry[V]{}, false
	}
	if c.fresh(e, now) {
		return e, true
	}

	s.mu.Lock()
	if cur, ok := s.entries[token]; ok && !c.fresh(cur, now) {
		delete(s.entries, token)
	}
	s.mu.Unlock()
	return Entry[V]{}, false
}

// Put inserts or overwrites the entry for token, stamped with the current time.
func (c *Cache[V]) Put(token string, v V) {
	s := c.shardFor(token)
	now := c.clock.Now()

	s.mu.Lock()
	s.entries[token] = Entry[V]{Token: token, Value: v, InsertedAt: now}
	s.mu.Unlock()
}

// Reserve returns a ticket for a lookup of token. Every ticket must end in
// PutIfCurrent or Release: evictions made while it is outstanding are remembered
// until then, however long the lookup takes.
func (c *Cache[V]) Reserve(string) Ticket {
	c.ticketMu.Lock()
	t := Ticket(c.seq.Add(1))
	c.outstanding[t] = struct{}{}
	c.ticketMu.Unlock()
	return t
}

// Release retires t without storing anything. Releasing twice is a no-op.
func (c *Cache[V]) Release(t Ticket) {
	c.ticketMu.Lock()
	delete(c.outstanding, t)
	c.ticketMu.Unlock()
}

// PutIfCurrent stores v unless token was evicted after t was reserved, then
// releases t. It reports whether the value was stored.
func (c *Cache[V]) PutIfCurrent(token string, v V, t Ticket) bool {
	defer c.Release(t)

	s := c.shardFor(token)
	now := c.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq, ok := s.tombstones[token]; ok && seq > uint64(t) {
		return false
	}
	s.entries[token] = Entry[V]{Token: token, Value: v, InsertedAt: now}
	return true
}

// Evict removes token if present. It is a no-op for unknown tokens, apart from
// invalidating outstanding tickets for that token.
func (c *Cache[V]) Evict(token string) {
	s := c.shardFor(token)
	floor := c.pruneFloor()

	s.mu.Lock()
	delete(s.entries, token)
	c.tombstoneLocked(s, token)
	pruneLocked(s, floor)
	s.mu.Unlock()
}

// EvictWhere removes every entry matching fn and returns how many were removed.
// It walks all shards and is meant for rare bulk invalidation.
func (c *Cache[V]) EvictWhere(fn func(Entry[V]) bool) int {
	removed := 0
	for _, s := range c.shards {
		floor := c.pruneFloor()
		s.mu.Lock()
		for token, e := range s.entries {
			if !fn(e) {
				continue
			}
			delete(s.entries, token)
			c.tombstoneLocked(s, token)
			removed++
		}
		pruneLocked(s, floor)
		s.mu.Unlock()
	}
	return removed
}

// Len counts entries that are still within the TTL.
func (c *Cache[V]) Len() int {
	now := c.clock.Now()
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if c.fresh(e, now) {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Purge drops every entry and tombstone. Used at shutdown and in tests.
func (c *Cache[V]) Purge() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]Entry[V])
		s.tombstones = make(map[string]uint64)
		s.queue = nil
		s.head = 0
		s.mu.Unlock()
	}
}

// Tombstones returns how many evictions are still remembered for outstanding
// tickets.
func (c *Cache[V]) Tombstones() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.tombstones)
		s.mu.RUnlock()
	}
	return n
}

// pruneFloor is the lowest sequence any current or future ticket can hold. A
// tombstone below it can no longer reject a write.
func (c *Cache[V]) pruneFloor() uint64 {
	c.ticketMu.Lock()
	defer c.ticketMu.Unlock()
	floor := c.seq.Load() + 1
	for t := range c.outstanding {
		floor = min(floor, uint64(t))
	}
	return floor
}

func (c *Cache[V]) tombstoneLocked(s *shard[V], token string) {
	seq := c.seq.Add(1)
	s.tombstones[token] = seq
	s.queue = append(s.queue, tombstone{token: token, seq: seq})
}

// pruneLocked pops tombstones below floor from the head of the queue. Each one is
// popped once, so an eviction costs constant time on average.
func pruneLocked[V any](s *shard[V], floor uint64) {
	for s.head < len(s.queue) && s.queue[s.head].seq < floor {
		ts := s.queue[s.head]
		if s.tombstones[ts.token] == ts.seq {
			delete(s.tombstones, ts.token)
		}
		s.queue[s.head] = tombstone{}
		s.head++
	}
	if s.head >= compactMin && s.head*2 >= len(s.queue) {
		n := copy(s.queue, s.queue[s.head:])
		clear(s.queue[n:])
		s.queue = s.queue[:n]
		s.head = 0
	}
}
