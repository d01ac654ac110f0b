package database

import (
	"context"
	"fmt"
)

// UpsertIssue inserts a new issue for fingerprintHash or advances an
// existing one. title and exceptionTypeID are only written on insert.
func (s *Store) UpsertIssue(ctx context.Context, tx Tx, fingerprintHash string, exceptionTypeID *int64, title string, receivedAt int64) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO issue (fingerprint_hash, exception_type_id, title, first_seen, last_seen, event_count)
		VALUES ($1, $2, $3, $4, $4, 1)
		ON CONFLICT (fingerprint_hash) DO UPDATE
		SET last_seen = GREATEST(issue.last_seen, excluded.last_seen),
		    event_count = issue.event_count + 1
		RETURNING id`,
		fingerprintHash, exceptionTypeID, title, receivedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: upsert issue %s: %w", fingerprintHash, err)
	}
	return id, nil
}
