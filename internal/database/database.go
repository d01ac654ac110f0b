package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the crashkeep connection pool with application-level
// helpers. Unlike the teacher's per-domain PoolManager, crashkeep is
// single-tenant: one pool serves every project.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to the database, verifies the connection, and
// bootstraps the schema.
func Open(ctx context.Context, connString string, maxConns int32, poolTimeout time.Duration) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, poolTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: bootstrap schema: %w", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, "0001_init"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: record migration: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool. Call this during graceful shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping verifies the pool can reach the database. Used by the health
// endpoint's background refresher.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
