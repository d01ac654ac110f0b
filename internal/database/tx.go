package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Tx is the transaction handle passed to digest_transaction's
// callback, an alias for pgx.Tx. The dimension get-or-insert helpers
// take a Tx, so they run inside a transaction; *pgxpool.Pool does not
// satisfy pgx.Tx and cannot be passed in its place.
type Tx = pgx.Tx

// DigestTransaction opens a transaction, runs fn against it, commits
// on success, and rolls back on any error or panic. This is the
// teacher's error-wrapping idiom applied to a transaction helper the
// teacher itself never needed — its single-statement writes never
// required one.
func (s *Store) DigestTransaction(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: begin digest tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: commit digest tx: %w", err)
	}
	return nil
}
