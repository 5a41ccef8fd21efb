// Package server is the crossauth demo HTTP API: email/password auth endpoints, the
// message and protected routes, health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/cookie"
	"github.com/MrEthical07/crossauth/internal/config"
	"github.com/MrEthical07/crossauth/internal/rate"
	promexport "github.com/MrEthical07/crossauth/metrics/export/prometheus"
	"github.com/MrEthical07/crossauth/middleware"
)

// Options wires a Server.
type Options struct {
	Manager *crossauth.Manager
	Codec   *cookie.Codec
	Config  config.ServerConfig
	Logger  *slog.Logger
	// Health reports backend readiness for GET /health. Nil means always healthy.
	Health func(ctx context.Context) error
	// Throttle limits failed sign-ins. Nil disables throttling.
	Throttle rate.Limiter
	Version  string
}

// Server owns the gin engine and its dependencies.
type Server struct {
	engine   *gin.Engine
	manager  *crossauth.Manager
	codec    *cookie.Codec
	cfg      config.ServerConfig
	logger   *slog.Logger
	health   func(ctx context.Context) error
	throttle rate.Limiter
	version  string

	requireAuth  gin.HandlerFunc
	optionalAuth gin.HandlerFunc
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, crossauth.ErrManagerNotReady
	}
	if opts.Codec == nil {
		return nil, errors.New("server: cookie codec is required")
	}
	if len(opts.Config.CORSOrigins) == 0 {
		return nil, errors.New("server: at least one CORS origin is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := promexport.Handler(opts.Manager)
	if err != nil {
		return nil, fmt.Errorf("server: metrics handler: %w", err)
	}

	s := &Server{
		engine:       gin.New(),
		manager:      opts.Manager,
		codec:        opts.Codec,
		cfg:          opts.Config,
		logger:       logger,
		health:       opts.Health,
		throttle:     opts.Throttle,
		version:      opts.Version,
		requireAuth:  middleware.Gin(opts.Manager, opts.Codec, middleware.WithLogger(logger)),
		optionalAuth: middleware.GinOptional(opts.Manager, opts.Codec, middleware.WithLogger(logger)),
	}

	s.engine.Use(gin.Recovery(), requestLogger(logger))
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:     opts.Config.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           600 * time.Second,
	}))

	s.routes(gin.WrapH(metrics))
	return s, nil
}

func (s *Server) routes(metrics gin.HandlerFunc) {
	s.engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello crossauth!")
	})
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", metrics)

	api := s.engine.Group("/api")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/sign-up/email", s.handleSignUp)
		authRoutes.POST("/sign-in/email", s.handleSignIn)
		authRoutes.POST("/sign-out", s.handleSignOut)
		authRoutes.GET("/get-session", s.optionalAuth, s.handleGetSession)
		authRoutes.POST("/revoke-sessions", s.requireAuth, s.handleRevokeSessions)

		api.GET("/message", s.handleGetMessage)
		if s.cfg.MessagePolicy == config.PolicyStrict {
			api.POST("/message", s.requireAuth, s.handlePostMessage)
		} else {
			api.POST("/message", s.optionalAuth, s.handlePostMessage)
		}

		protected := api.Group("/protected", s.requireAuth)
		protected.GET("", s.handleProtected)
		protected.POST("", s.handleProtected)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"service":         "crossauth",
		"version":         s.version,
		"cached_sessions": s.manager.CachedSessions(),
	})
}
