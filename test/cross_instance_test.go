//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/crossauth"
)

func waitUnauthenticated(t *testing.T, m *crossauth.Manager, token string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Validate(context.Background(), token); errors.Is(err, crossauth.ErrUnauthenticated) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session still valid on peer after revocation")
}

// TestRevokeOnOneInstanceEvictsPeerCache verifies that a warm cache entry on another
// instance is dropped once the revocation is broadcast.
func TestRevokeOnOneInstanceEvictsPeerCache(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newInstance(t, mr, true)
	b := newInstance(t, mr, true)
	seedUser(t, a, "u-peer")

	ctx := context.Background()
	sess, err := a.manager.Issue(ctx, "u-peer")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.manager.Validate(ctx, sess.Token); err != nil {
		t.Fatalf("peer validate: %v", err)
	}
	if b.manager.CachedSessions() != 1 {
		t.Fatalf("expected peer cache to hold the session, got %d", b.manager.CachedSessions())
	}

	if err := a.manager.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	waitUnauthenticated(t, b.manager, sess.Token)
}

// TestRevokeAllOnOneInstanceEvictsPeerCache covers sign-out everywhere across instances.
func TestRevokeAllOnOneInstanceEvictsPeerCache(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newInstance(t, mr, true)
	b := newInstance(t, mr, true)
	seedUser(t, a, "u-all")

	ctx := context.Background()
	tokens := make([]string, 3)
	for i := range tokens {
		sess, err := a.manager.Issue(ctx, "u-all")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		tokens[i] = sess.Token
		if _, err := b.manager.Validate(ctx, sess.Token); err != nil {
			t.Fatalf("peer validate: %v", err)
		}
	}

	n, err := a.manager.RevokeAllForUser(ctx, "u-all")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != len(tokens) {
		t.Fatalf("expected %d revoked, got %d", len(tokens), n)
	}
	for _, token := range tokens {
		waitUnauthenticated(t, b.manager, token)
	}
}

// TestWithoutInvalidationPeerServesUntilTTL documents the single-process mode: a peer
// keeps its cached entry until the cache TTL passes.
func TestWithoutInvalidationPeerServesUntilTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newInstance(t, mr, false)
	b := newInstance(t, mr, false)
	seedUser(t, a, "u-local")

	ctx := context.Background()
	sess, err := a.manager.Issue(ctx, "u-local")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.manager.Validate(ctx, sess.Token); err != nil {
		t.Fatalf("peer validate: %v", err)
	}
	if err := a.manager.Revoke(ctx, sess.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if _, err := a.manager.Validate(ctx, sess.Token); !errors.Is(err, crossauth.ErrUnauthenticated) {
		t.Fatalf("revoking instance must reject immediately, got %v", err)
	}
	if _, err := b.manager.Validate(ctx, sess.Token); err != nil {
		t.Fatalf("peer without invalidation should still serve its cache entry, got %v", err)
	}
}

// TestConcurrentValidateAcrossInstances checks that concurrent cold validations on two
// instances each resolve the same identity.
func TestConcurrentValidateAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newInstance(t, mr, true)
	b := newInstance(t, mr, true)
	seedUser(t, a, "u-race")

	ctx := context.Background()
	sess, err := a.manager.Issue(ctx, "u-race")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		for _, m := range []*crossauth.Manager{a.manager, b.manager} {
			wg.Add(1)
			go func(m *crossauth.Manager) {
				defer wg.Done()
				id, err := m.Validate(ctx, sess.Token)
				if err == nil && id.User.ID != "u-race" {
					err = errors.New("unexpected user " + id.User.ID)
				}
				if err != nil {
					errs <- err
				}
			}(m)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
