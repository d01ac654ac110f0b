package database

import (
	"context"
	"fmt"
)

// TerminalSessionStatuses names session statuses that never revert to
// a non-terminal status once reached.
var TerminalSessionStatuses = map[string]bool{
	"exited":   true,
	"crashed":  true,
	"abnormal": true,
}

// UpsertSessionParams carries the resolved dimension ids plus scalar
// fields for a session update.
type UpsertSessionParams struct {
	ProjectID     int64
	SID           string
	Init          bool
	StartedAt     int64
	Timestamp     int64
	Errors        int
	StatusID      int64
	ReleaseID     *int64
	EnvironmentID *int64
}

// UpsertSession applies the session conflict rules: errors takes the
// max of stored and incoming, timestamp takes the later of the two,
// and status only advances away from a terminal stored status never
// happens — the incoming status wins unless the stored status is
// already terminal.
func (s *Store) UpsertSession(ctx context.Context, tx Tx, p UpsertSessionParams) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO session (project_id, sid, init, started_at, timestamp, errors, status_id, release_id, environment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (project_id, sid) DO UPDATE
		SET errors = GREATEST(session.errors, excluded.errors),
		    timestamp = GREATEST(session.timestamp, excluded.timestamp),
		    status_id = CASE
		        WHEN (SELECT value FROM unwrap_session_status WHERE id = session.status_id) IN ('exited', 'crashed', 'abnormal')
		        THEN session.status_id
		        ELSE excluded.status_id
		    END,
		    release_id = COALESCE(excluded.release_id, session.release_id),
		    environment_id = COALESCE(excluded.environment_id, session.environment_id)
		RETURNING id`,
		p.ProjectID, p.SID, p.Init, p.StartedAt, p.Timestamp, p.Errors, p.StatusID, p.ReleaseID, p.EnvironmentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("database: upsert session %s: %w", p.SID, err)
	}
	return id, nil
}
