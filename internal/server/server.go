// Package server provides crashkeep's HTTP server, built on Echo v4.
// It hosts the Sentry-compatible ingest endpoints, an admin-gated
// management API, a health endpoint, and a Prometheus /metrics
// endpoint.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/analytics"
	"github.com/primal-host/crashkeep/internal/cache"
	"github.com/primal-host/crashkeep/internal/codec"
	"github.com/primal-host/crashkeep/internal/config"
	"github.com/primal-host/crashkeep/internal/database"
	"github.com/primal-host/crashkeep/internal/metrics"
	"github.com/primal-host/crashkeep/internal/ratelimit"
)

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	log  *zap.Logger

	store        *database.Store
	projectCache *cache.ProjectCache
	limiter      *ratelimit.Limiter
	sink         *analytics.Sink
	sem          *codec.Semaphore

	healthMu sync.RWMutex
	health   *database.HealthStats
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, store *database.Store, projectCache *cache.ProjectCache, limiter *ratelimit.Limiter, sink *analytics.Sink, sem *codec.Semaphore, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:         e,
		cfg:          cfg,
		log:          log,
		store:        store,
		projectCache: projectCache,
		limiter:      limiter,
		sink:         sink,
		sem:          sem,
	}

	s.registerRoutes()
	return s
}

// Start begins listening for HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown allowing
// in-flight requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// RunHealthRefresher periodically reloads cached stats for the health
// endpoint so request handling never blocks on a live count query.
func (s *Server) RunHealthRefresher(ctx context.Context, interval time.Duration) {
	s.refreshHealth(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshHealth(ctx)
		}
	}
}

func (s *Server) refreshHealth(ctx context.Context) {
	stats, err := s.store.LoadHealthStats(ctx)
	if err != nil {
		s.log.Warn("health stats refresh failed", zap.Error(err))
		return
	}
	s.healthMu.Lock()
	s.health = stats
	s.healthMu.Unlock()

	metrics.QueueDepthGauge.Set(float64(stats.Queued))
	metrics.QueueErrorDepthGauge.Set(float64(stats.Errored))
}

func (s *Server) cachedHealth() *database.HealthStats {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.health
}

// adminAuth validates the Authorization header against the configured
// admin key. Management API endpoints are protected by this
// middleware.
func (s *Server) adminAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get("Authorization")
		if auth == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "AuthRequired",
				"message": "Authorization header is required",
			})
		}

		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "InvalidAuth",
				"message": "Authorization header must use Bearer scheme",
			})
		}

		if auth[len(prefix):] != s.cfg.AdminKey {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "Forbidden",
				"message": "Invalid admin key",
			})
		}

		return next(c)
	}
}
