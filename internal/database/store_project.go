package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/primal-host/crashkeep/internal/apperr"
)

// Project mirrors a row of the project table.
type Project struct {
	ID        int64
	PublicKey string
	Name      string
	CreatedAt time.Time
}

// ResolveProjectByKey returns the project id for a DSN public key.
// Returns apperr.ErrNotFound if no project has that key.
func (s *Store) ResolveProjectByKey(ctx context.Context, publicKey string) (int64, error) {
	var id int64
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id FROM project WHERE public_key = $1`, publicKey,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: public key", apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("database: resolve project by key: %w", err)
	}
	return id, nil
}

// CreateProject inserts a new project with the given public key.
func (s *Store) CreateProject(ctx context.Context, publicKey, name string) (*Project, error) {
	var p Project
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO project (public_key, name) VALUES ($1, $2)
		 RETURNING id, public_key, name, created_at`,
		publicKey, name,
	).Scan(&p.ID, &p.PublicKey, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("database: create project %q: %w", name, err)
	}
	return &p, nil
}

// ListProjects returns every project, oldest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, public_key, name, created_at FROM project ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.PublicKey, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project by id. Archives, reports, and
// sessions reference project(id) without ON DELETE CASCADE, so the
// delete fails with a foreign-key error while any of them remain.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM project WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("database: delete project %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: project %d", apperr.ErrNotFound, id)
	}
	return nil
}
