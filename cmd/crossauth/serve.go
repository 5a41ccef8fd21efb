package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/cookie"
	"github.com/MrEthical07/crossauth/credstore"
	"github.com/MrEthical07/crossauth/internal/config"
	"github.com/MrEthical07/crossauth/internal/rate"
	"github.com/MrEthical07/crossauth/internal/server"
	"github.com/MrEthical07/crossauth/session"
)

const (
	invalidationChannel = "crossauth:revoked"
	purgeInterval       = time.Minute
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := cfg.Log.Logger(os.Stderr)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	return cmd
}

// backend is the store selected by config plus everything needed to run and close it.
type backend struct {
	redis       *redis.Client
	store       crossauth.CredentialStore
	invalidator crossauth.Invalidator
	health      func(ctx context.Context) error
	purge       func(ctx context.Context)
	closers     []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	var rdb *redis.Client
	if cfg.Store.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		b.redis = rdb
		b.closers = append(b.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch cfg.Store.Kind {
	case config.StoreMemory:
		mem := credstore.NewMemory()
		b.store = mem
		b.purge = func(context.Context) {
			if n := mem.PurgeExpired(time.Now()); n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	case config.StoreRedis:
		rs := credstore.NewRedis(rdb)
		b.store = rs
		b.health = func(ctx context.Context) error {
			_, err := rs.Sessions().Ping(ctx)
			return err
		}
	case config.StorePostgres:
		pg, err := credstore.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		b.closers = append(b.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		b.store = pg
		b.health = pg.Ping
		b.purge = func(ctx context.Context) {
			n, err := pg.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("purge expired sessions failed", "error", err)
				return
			}
			if n > 0 {
				logger.Debug("purged expired sessions", "count", n)
			}
		}
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if cfg.Store.Invalidation && rdb != nil {
		b.invalidator = session.NewBroadcaster(rdb, invalidationChannel)
	}
	return b, nil
}

// newThrottle shares counters through Redis when a client is configured.
func newThrottle(cfg config.RateLimitConfig, rdb *redis.Client) (rate.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rc := rate.Config{MaxAttempts: cfg.MaxAttempts, Window: cfg.Window, PerIP: true}
	if rdb != nil {
		return rate.NewRedis(rdb, rc)
	}
	return rate.NewMemory(rc, nil)
}

func runPurger(ctx context.Context, purge func(context.Context)) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge(ctx)
		}
	}
}

func managerConfig(cfg *config.Config) crossauth.Config {
	mc := crossauth.DefaultConfig()
	mc.Session.Lifetime = cfg.Session.Lifetime
	mc.Cache.TTL = cfg.Session.CacheTTL
	mc.Session.StoreTimeout = cfg.Session.StoreTimeout
	mc.Audit.Enabled = cfg.Log.Audit
	mc.Metrics.EnableLatencyHistograms = true
	return mc
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}()

	builder := crossauth.New().
		WithConfig(managerConfig(cfg)).
		WithStore(b.store).
		WithLogger(logger).
		WithAuditSink(crossauth.NewSlogSink(logger.With("component", "audit")))
	if b.invalidator != nil {
		builder = builder.WithInvalidator(b.invalidator)
	}
	manager, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer manager.Close()

	report := manager.SecurityReport()
	logger.Info("session manager ready",
		"store", cfg.Store.Kind,
		"session_lifetime", report.SessionLifetime,
		"cache_ttl", report.CacheTTL,
		"cache_shards", report.CacheShards,
		"roles", report.Roles,
		"invalidation", report.InvalidationEnabled,
		"audit", report.AuditEnabled,
		"signed_cookies", cfg.Cookie.Secret != "",
	)

	codec, err := cookie.NewCodec(cookie.Options{
		Name:   cfg.Cookie.Name,
		Domain: cfg.Cookie.Domain,
		MaxAge: cfg.Session.Lifetime,
		Secret: []byte(cfg.Cookie.Secret),
		Issuer: appName,
	})
	if err != nil {
		return fmt.Errorf("cookie codec: %w", err)
	}

	throttle, err := newThrottle(cfg.Server.RateLimit, b.redis)
	if err != nil {
		return fmt.Errorf("sign-in throttle: %w", err)
	}

	srv, err := server.New(server.Options{
		Manager:  manager,
		Codec:    codec,
		Config:   cfg.Server,
		Logger:   logger,
		Health:   b.health,
		Throttle: throttle,
		Version:  Version,
	})
	if err != nil {
		return err
	}

	if b.purge != nil {
		go runPurger(ctx, b.purge)
	}
	return srv.Run(ctx, cfg.Server.Addr)
}
