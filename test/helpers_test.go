//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/credstore"
	"github.com/MrEthical07/crossauth/session"
)

// cmdCounter is a go-redis Hook that counts Redis commands and pipeline round-trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

// instance is one process sharing the Redis deployment.
type instance struct {
	manager *crossauth.Manager
	store   *credstore.Redis
	rdb     *redis.Client
	counter *cmdCounter
}

func testConfig() crossauth.Config {
	cfg := crossauth.DefaultConfig()
	cfg.Password = crossauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	return cfg
}

// newInstance connects a Manager to mr. The counter is reset after the connection
// warms up and the user is seeded.
func newInstance(t *testing.T, mr *miniredis.Miniredis, invalidation bool) *instance {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	store := credstore.NewRedis(rdb)
	b := crossauth.New().WithConfig(testConfig()).WithStore(store)
	if invalidation {
		b = b.WithInvalidator(session.NewBroadcaster(rdb, ""))
	}
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(m.Close)

	counter.Reset()
	return &instance{manager: m, store: store, rdb: rdb, counter: counter}
}

func seedUser(t *testing.T, in *instance, id string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := in.store.CreateUser(context.Background(), crossauth.User{
		ID:        id,
		Email:     id + "@example.com",
		Role:      crossauth.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}
