package database

import (
	"github.com/primal-host/crashkeep/internal/apperr"
)

// Store provides all crashkeep persistence operations backed by a
// single pgx pool. It plays the role the teacher's account.Store and
// blob.Store each played separately, since crashkeep has no per-tenant
// pool boundary to split along.
type Store struct {
	db *DB
}

// NewStore creates a Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// InsertResult reports whether insert_archive_if_absent actually
// inserted a new row.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

var errNotFound = apperr.ErrNotFound
