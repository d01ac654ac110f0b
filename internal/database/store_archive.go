package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/primal-host/crashkeep/internal/apperr"
)

// Archive mirrors a row of the archive table.
type Archive struct {
	Hash              string
	ProjectID         int64
	CompressedPayload []byte
	OriginalSize      *int64
	IsEnvelope        bool
	CreatedAt         time.Time
}

// InsertArchiveIfAbsent inserts the archive row if hash is new. If a
// row with the same hash already exists it is left untouched and
// AlreadyExists is returned — never overwrite existing bytes.
func (s *Store) InsertArchiveIfAbsent(ctx context.Context, hash string, projectID int64, payload []byte, originalSize *int64, isEnvelope bool) (InsertResult, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`INSERT INTO archive (hash, project_id, compressed_payload, original_size, is_envelope)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (hash) DO NOTHING`,
		hash, projectID, payload, originalSize, isEnvelope)
	if err != nil {
		return AlreadyExists, fmt.Errorf("database: insert archive %s: %w", hash, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// GetArchive loads an archive's payload and owning project.
func (s *Store) GetArchive(ctx context.Context, hash string) (*Archive, error) {
	var a Archive
	err := s.db.Pool.QueryRow(ctx,
		`SELECT hash, project_id, compressed_payload, original_size, is_envelope, created_at
		 FROM archive WHERE hash = $1`, hash,
	).Scan(&a.Hash, &a.ProjectID, &a.CompressedPayload, &a.OriginalSize, &a.IsEnvelope, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: archive %s", apperr.ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("database: get archive %s: %w", hash, err)
	}
	return &a, nil
}

// Enqueue inserts a queue row for hash unless it already appears in
// queue or queue_error.
func (s *Store) Enqueue(ctx context.Context, hash string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO queue (archive_hash)
		 SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM queue_error WHERE archive_hash = $1)
		 ON CONFLICT (archive_hash) DO NOTHING`, hash)
	if err != nil {
		return fmt.Errorf("database: enqueue %s: %w", hash, err)
	}
	return nil
}

// ClaimBatch returns up to n pending archive hashes, FIFO order.
// Claiming does not remove the row.
func (s *Store) ClaimBatch(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT archive_hash FROM queue ORDER BY id LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("database: claim batch: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("database: scan claimed hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// MoveToQueueError deletes the queue row and inserts a queue_error
// row for hash, within one transaction.
func (s *Store) MoveToQueueError(ctx context.Context, hash, errText string) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: begin move-to-error tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM queue WHERE archive_hash = $1`, hash); err != nil {
		return fmt.Errorf("database: delete queue row %s: %w", hash, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO queue_error (archive_hash, error) VALUES ($1, $2)
		 ON CONFLICT (archive_hash) DO UPDATE SET error = excluded.error`,
		hash, errText); err != nil {
		return fmt.Errorf("database: insert queue_error %s: %w", hash, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: commit move-to-error tx: %w", err)
	}
	return nil
}

// DeleteQueueRow removes hash's queue row, the final step of a
// successful digest transaction.
func (s *Store) DeleteQueueRow(ctx context.Context, tx Tx, hash string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM queue WHERE archive_hash = $1`, hash); err != nil {
		return fmt.Errorf("database: delete queue row %s: %w", hash, err)
	}
	return nil
}

// OrphanArchiveHashes returns archives that have neither a queue nor
// queue_error row nor a report, for the ruminate operation.
func (s *Store) OrphanArchiveHashes(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT a.hash FROM archive a
		WHERE NOT EXISTS (SELECT 1 FROM queue q WHERE q.archive_hash = a.hash)
		  AND NOT EXISTS (SELECT 1 FROM queue_error qe WHERE qe.archive_hash = a.hash)
		  AND NOT EXISTS (SELECT 1 FROM report r WHERE r.archive_hash = a.hash)
	`)
	if err != nil {
		return nil, fmt.Errorf("database: orphan archives: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("database: scan orphan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// ListArchives returns every archive, for the export CLI operation.
func (s *Store) ListArchives(ctx context.Context) ([]Archive, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT hash, project_id, compressed_payload, original_size, is_envelope, created_at FROM archive ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("database: list archives: %w", err)
	}
	defer rows.Close()

	var out []Archive
	for rows.Next() {
		var a Archive
		if err := rows.Scan(&a.Hash, &a.ProjectID, &a.CompressedPayload, &a.OriginalSize, &a.IsEnvelope, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: scan archive: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
