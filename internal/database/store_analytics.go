package database

import (
	"context"
	"fmt"
	"time"
)

// BumpRateLimitGlobal adds n hits to the global rate-limit bucket
// starting at bucketStart.
func (s *Store) BumpRateLimitGlobal(ctx context.Context, bucketStart time.Time, n int64) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO bucket_rate_limit_global (bucket_start, hit_count) VALUES ($1, $2)
		ON CONFLICT (bucket_start) DO UPDATE SET hit_count = bucket_rate_limit_global.hit_count + excluded.hit_count`,
		bucketStart, n)
	if err != nil {
		return fmt.Errorf("database: bump global rate-limit bucket: %w", err)
	}
	return nil
}

// BumpRateLimitProject adds n hits to a project's rate-limit bucket.
func (s *Store) BumpRateLimitProject(ctx context.Context, projectID int64, bucketStart time.Time, n int64) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO bucket_rate_limit_project (project_id, bucket_start, hit_count) VALUES ($1, $2, $3)
		ON CONFLICT (project_id, bucket_start) DO UPDATE SET hit_count = bucket_rate_limit_project.hit_count + excluded.hit_count`,
		projectID, bucketStart, n)
	if err != nil {
		return fmt.Errorf("database: bump project rate-limit bucket: %w", err)
	}
	return nil
}

// BumpRateLimitSubnet adds n hits to a subnet's rate-limit bucket.
func (s *Store) BumpRateLimitSubnet(ctx context.Context, subnet string, bucketStart time.Time, n int64) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO bucket_rate_limit_subnet (subnet, bucket_start, hit_count) VALUES ($1, $2, $3)
		ON CONFLICT (subnet, bucket_start) DO UPDATE SET hit_count = bucket_rate_limit_subnet.hit_count + excluded.hit_count`,
		subnet, bucketStart, n)
	if err != nil {
		return fmt.Errorf("database: bump subnet rate-limit bucket: %w", err)
	}
	return nil
}

// BumpRequestLatency folds one batch of latency samples for endpoint
// into its one-minute bucket.
func (s *Store) BumpRequestLatency(ctx context.Context, endpoint string, bucketStart time.Time, count int64, totalMs, minMs, maxMs float64) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO bucket_request_latency (endpoint, bucket_start, request_count, total_ms, min_ms, max_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (endpoint, bucket_start) DO UPDATE SET
			request_count = bucket_request_latency.request_count + excluded.request_count,
			total_ms = bucket_request_latency.total_ms + excluded.total_ms,
			min_ms = LEAST(bucket_request_latency.min_ms, excluded.min_ms),
			max_ms = GREATEST(bucket_request_latency.max_ms, excluded.max_ms)`,
		endpoint, bucketStart, count, totalMs, minMs, maxMs)
	if err != nil {
		return fmt.Errorf("database: bump request-latency bucket: %w", err)
	}
	return nil
}

// SweepAnalyticsRetention deletes bucket rows older than cutoff, run
// once per day.
func (s *Store) SweepAnalyticsRetention(ctx context.Context, cutoff time.Time) error {
	tables := []string{
		"bucket_rate_limit_global",
		"bucket_rate_limit_project",
		"bucket_rate_limit_subnet",
		"bucket_request_latency",
	}
	for _, table := range tables {
		if _, err := s.db.Pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE bucket_start < $1`, table), cutoff); err != nil {
			return fmt.Errorf("database: sweep %s: %w", table, err)
		}
	}
	return nil
}

// HealthStats is the cached snapshot the health endpoint serves.
type HealthStats struct {
	Archives int64
	Reports  int64
	Issues   int64
	Queued   int64
	Errored  int64
}

// LoadHealthStats queries the current counts for the health
// endpoint's background refresher. Never called on the request path.
func (s *Store) LoadHealthStats(ctx context.Context) (*HealthStats, error) {
	var h HealthStats
	err := s.db.Pool.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM archive),
		(SELECT count(*) FROM report),
		(SELECT count(*) FROM issue),
		(SELECT count(*) FROM queue),
		(SELECT count(*) FROM queue_error)
	`).Scan(&h.Archives, &h.Reports, &h.Issues, &h.Queued, &h.Errored)
	if err != nil {
		return nil, fmt.Errorf("database: load health stats: %w", err)
	}
	return &h, nil
}
