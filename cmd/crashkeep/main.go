// crashkeep is a self-hosted, Sentry-SDK-wire-protocol-compatible
// crash and error report ingestion backend.
//
// It reads configuration from the process environment, connects to
// PostgreSQL, bootstraps the schema, and starts both the HTTP ingest
// server and the background digest worker.
//
// Usage:
//
//	./crashkeep              # reads env vars, starts server + worker
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/analytics"
	"github.com/primal-host/crashkeep/internal/apperr"
	"github.com/primal-host/crashkeep/internal/cache"
	"github.com/primal-host/crashkeep/internal/codec"
	"github.com/primal-host/crashkeep/internal/config"
	"github.com/primal-host/crashkeep/internal/database"
	"github.com/primal-host/crashkeep/internal/logging"
	"github.com/primal-host/crashkeep/internal/ratelimit"
	"github.com/primal-host/crashkeep/internal/server"
	"github.com/primal-host/crashkeep/internal/worker"
)

const (
	projectCacheTTL    = 60 * time.Second
	healthRefreshEvery = 60 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't built yet; this is the one place a plain stderr
		// write beats a broken logger.
		os.Stderr.WriteString("crashkeep: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("crashkeep: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("crashkeep starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.DatabasePoolSize, time.Duration(cfg.DatabasePoolTimeoutSecs)*time.Second)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	log.Info("database connected, schema bootstrapped")

	store := database.NewStore(db)

	projectCache := cache.New(projectCacheTTL, func(ctx context.Context, publicKey string) (int64, bool, error) {
		id, err := store.ResolveProjectByKey(ctx, publicKey)
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	})

	limiter := ratelimit.New(cfg.RateLimitGlobalPerSec, cfg.RateLimitPerIPPerSec, cfg.RateLimitPerProjectPerSec, cfg.RateLimitBurstMultiplier)
	sem := codec.NewSemaphore(cfg.MaxConcurrentCompressions)

	sink := analytics.New(
		cfg.AnalyticsBufferSize,
		time.Duration(cfg.AnalyticsFlushIntervalSecs)*time.Second,
		time.Duration(cfg.AnalyticsRetentionDays)*24*time.Hour,
		store, log,
	)
	go sink.Run(ctx)

	digest := worker.New(store, log, time.Duration(cfg.WorkerIntervalSecs)*time.Second, cfg.WorkerReportsBatchSize, cfg.MaxUncompressedPayloadBytes)
	go digest.Run(ctx)

	srv := server.New(cfg, store, projectCache, limiter, sink, sem, log)
	go srv.RunHealthRefresher(ctx, healthRefreshEvery)

	if err := srv.Start(ctx); err != nil {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("crashkeep stopped")
}
