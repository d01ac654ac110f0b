package database

import (
	"context"
	"fmt"

	"github.com/primal-host/crashkeep/internal/sentry"
)

// dimensionTables names every single-value dimension table, used by
// GetOrInsertDimension's allowlist so table names never come from
// untrusted input despite being interpolated into SQL text.
var dimensionTables = map[string]bool{
	"unwrap_platform":           true,
	"unwrap_environment":        true,
	"unwrap_os_name":            true,
	"unwrap_os_version":         true,
	"unwrap_manufacturer":       true,
	"unwrap_brand":              true,
	"unwrap_model":              true,
	"unwrap_chipset":            true,
	"unwrap_locale_code":        true,
	"unwrap_timezone":           true,
	"unwrap_connection_type":    true,
	"unwrap_orientation":        true,
	"unwrap_app_name":           true,
	"unwrap_app_version":        true,
	"unwrap_app_build":          true,
	"unwrap_user":               true,
	"unwrap_exception_type":     true,
	"unwrap_session_status":     true,
	"unwrap_session_release":    true,
	"unwrap_session_environment": true,
}

// GetOrInsertDimension resolves value to its id in table, inserting a
// new row if needed. Concurrent callers racing on the same value are
// safe: ON CONFLICT DO NOTHING followed by a SELECT always finds the
// winner's row.
func (s *Store) GetOrInsertDimension(ctx context.Context, tx Tx, table, value string) (int64, error) {
	if !dimensionTables[table] {
		return 0, fmt.Errorf("database: unknown dimension table %q", table)
	}

	var id int64
	q := fmt.Sprintf(`
		WITH ins AS (
			INSERT INTO %s (value) VALUES ($1)
			ON CONFLICT (value) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM %s WHERE value = $1
		LIMIT 1`, table, table)
	if err := tx.QueryRow(ctx, q, value).Scan(&id); err != nil {
		return 0, fmt.Errorf("database: get-or-insert %s(%q): %w", table, value, err)
	}
	return id, nil
}

// GetOrInsertExceptionMessage resolves an exception message by its
// content hash, deduplicating long identical messages.
func (s *Store) GetOrInsertExceptionMessage(ctx context.Context, tx Tx, hash, value string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO unwrap_exception_message (hash, value) VALUES ($1, $2)
			ON CONFLICT (hash) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM unwrap_exception_message WHERE hash = $1
		LIMIT 1`, hash, value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: get-or-insert exception_message: %w", err)
	}
	return id, nil
}

// GetOrInsertStacktrace resolves a stack trace by the hash of its
// normalized frames, storing the fingerprint hash and frames JSON on
// first insert.
func (s *Store) GetOrInsertStacktrace(ctx context.Context, tx Tx, hash, fingerprintHash string, framesJSON []byte) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO unwrap_stacktrace (hash, fingerprint_hash, frames) VALUES ($1, $2, $3)
			ON CONFLICT (hash) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM unwrap_stacktrace WHERE hash = $1
		LIMIT 1`, hash, fingerprintHash, framesJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: get-or-insert stacktrace: %w", err)
	}
	return id, nil
}

// GetOrInsertDeviceSpecs resolves the composite device_specs tuple.
// Every column is nullable, so the lookup half of the upsert must use
// IS NOT DISTINCT FROM rather than plain equality. Postgres also
// treats NULL as distinct from NULL for unique-index conflict
// detection, so ON CONFLICT DO NOTHING alone never fires for two
// concurrent inserts of the same partially-null tuple — each would
// succeed and leave a duplicate row. A transaction-scoped advisory
// lock keyed on the tuple serializes concurrent callers so the second
// one always observes the first one's committed row.
func (s *Store) GetOrInsertDeviceSpecs(ctx context.Context, tx Tx, specs sentry.DeviceSpecs) (int64, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, deviceSpecsLockKey(specs)); err != nil {
		return 0, fmt.Errorf("database: device_specs advisory lock: %w", err)
	}

	var id int64
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO unwrap_device_specs
				(screen_width, screen_height, screen_density, screen_dpi, processor_count, memory_size, archs)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (screen_width, screen_height, screen_density, screen_dpi, processor_count, memory_size, archs)
			DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM unwrap_device_specs
		WHERE screen_width IS NOT DISTINCT FROM $1
		  AND screen_height IS NOT DISTINCT FROM $2
		  AND screen_density IS NOT DISTINCT FROM $3
		  AND screen_dpi IS NOT DISTINCT FROM $4
		  AND processor_count IS NOT DISTINCT FROM $5
		  AND memory_size IS NOT DISTINCT FROM $6
		  AND archs IS NOT DISTINCT FROM $7
		LIMIT 1`,
		specs.ScreenWidth, specs.ScreenHeight, specs.ScreenDensity, specs.ScreenDPI,
		specs.ProcessorCount, specs.MemorySize, specs.Archs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: get-or-insert device_specs: %w", err)
	}
	return id, nil
}

// deviceSpecsLockKey builds a stable per-tuple string, hashed by
// Postgres's hashtext() into the advisory lock key. nil pointers print
// as "<nil>", which is fine: the key only needs to group identical
// tuples, not to be human-readable.
func deviceSpecsLockKey(specs sentry.DeviceSpecs) string {
	return fmt.Sprintf("device_specs:%v:%v:%v:%v:%v:%v:%v",
		deref(specs.ScreenWidth), deref(specs.ScreenHeight), deref(specs.ScreenDensity),
		deref(specs.ScreenDPI), deref(specs.ProcessorCount), deref(specs.MemorySize), deref(specs.Archs))
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
