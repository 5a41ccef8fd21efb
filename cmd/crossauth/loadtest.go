package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/credstore"
)

type loadtestOptions struct {
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

func loadtestCmd() *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure Validate and Revoke latency against Redis",
		Long: `Seed sessions in Redis, then run three phases through a Manager:
cold validation (store lookups), warm validation (cache hits) and revocation.
Without --redis-addr or REDIS_ADDR an in-process miniredis is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("sessions, concurrency, and ops must be > 0")
			}
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.sessions, "sessions", 10000, "number of sessions to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 256, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 200000, "operations per validate phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; empty uses REDIS_ADDR or miniredis")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "calt", "key prefix")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	addr := opts.redisAddr
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() {
		_ = client.Close()
		if cleanup != nil {
			cleanup()
		}
	}()

	store := credstore.NewRedis(client, credstore.WithKeyPrefix(opts.prefix))
	cfg := crossauth.DefaultConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	manager, err := crossauth.New().WithConfig(cfg).WithStore(store).Build()
	if err != nil {
		return err
	}
	defer manager.Close()

	user, err := store.CreateUser(ctx, crossauth.User{
		ID:        fmt.Sprintf("loadtest-%d", time.Now().UnixNano()),
		Email:     fmt.Sprintf("loadtest-%d@example.invalid", time.Now().UnixNano()),
		Role:      crossauth.RoleUser,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	tokens := make([]string, opts.sessions)
	fmt.Fprintf(out, "seeding %d sessions...\n", opts.sessions)
	startSeed := time.Now()
	for i := range tokens {
		sess, err := manager.Issue(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		tokens[i] = sess.Token
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	cold := runPhase(opts.sessions, opts.concurrency, func(i int, _ *rand.Rand) error {
		_, err := manager.Validate(ctx, tokens[i])
		return err
	})
	warm := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		_, err := manager.Validate(ctx, tokens[r.Intn(len(tokens))])
		return err
	})
	revoke := runPhase(opts.sessions, opts.concurrency, func(i int, _ *rand.Rand) error {
		return manager.Revoke(ctx, tokens[i])
	})

	snapshot := manager.MetricsSnapshot()
	fmt.Fprintln(out, "---- results ----")
	printStats(out, "validate-cold", cold)
	printStats(out, "validate-warm", warm)
	printStats(out, "revoke", revoke)
	fmt.Fprintf(out, "cache: hits=%d misses=%d\n",
		snapshot.Counters[crossauth.MetricCacheHit],
		snapshot.Counters[crossauth.MetricCacheMiss],
	)
	return nil
}

// runPhase calls op ops times across concurrency workers. i is the operation index.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
