package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/primal-host/crashkeep/internal/apperr"
)

// ReportRow is the full set of columns for one report insert.
type ReportRow struct {
	EventID            string
	ArchiveHash        string
	ProjectID          int64
	Timestamp          int64
	IssueID            *int64
	SessionID          *int64
	PlatformID         *int64
	EnvironmentID      *int64
	OSNameID           *int64
	OSVersionID        *int64
	ManufacturerID     *int64
	BrandID            *int64
	ModelID            *int64
	ChipsetID          *int64
	DeviceSpecsID      *int64
	LocaleCodeID       *int64
	TimezoneID         *int64
	ConnectionTypeID   *int64
	OrientationID      *int64
	AppNameID          *int64
	AppVersionID       *int64
	AppBuildID         *int64
	UserID             *int64
	ExceptionTypeID    *int64
	ExceptionMessageID *int64
	StacktraceID       *int64
}

// InsertReport inserts one report row. If event_id already exists,
// returns apperr.ErrDuplicate — digest treats this as success since
// digest must be idempotent under re-processing the same archive.
func (s *Store) InsertReport(ctx context.Context, tx Tx, r ReportRow) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO report (
			event_id, archive_hash, project_id, timestamp, issue_id, session_id,
			platform_id, environment_id, os_name_id, os_version_id, manufacturer_id,
			brand_id, model_id, chipset_id, device_specs_id, locale_code_id,
			timezone_id, connection_type_id, orientation_id, app_name_id,
			app_version_id, app_build_id, user_id, exception_type_id,
			exception_message_id, stacktrace_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		RETURNING id`,
		r.EventID, r.ArchiveHash, r.ProjectID, r.Timestamp, r.IssueID, r.SessionID,
		r.PlatformID, r.EnvironmentID, r.OSNameID, r.OSVersionID, r.ManufacturerID,
		r.BrandID, r.ModelID, r.ChipsetID, r.DeviceSpecsID, r.LocaleCodeID,
		r.TimezoneID, r.ConnectionTypeID, r.OrientationID, r.AppNameID,
		r.AppVersionID, r.AppBuildID, r.UserID, r.ExceptionTypeID,
		r.ExceptionMessageID, r.StacktraceID,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: event %s", apperr.ErrDuplicate, r.EventID)
	}
	if err != nil {
		return 0, fmt.Errorf("database: insert report %s: %w", r.EventID, err)
	}
	return id, nil
}

// uniqueViolation is Postgres's SQLSTATE for a unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsTransientError reports whether err represents a transient database
// condition — connection loss, serialization failure, an admin-forced
// disconnect, resource exhaustion — as opposed to a constraint
// violation or other data-level error, which will fail identically on
// every retry. Errors that never even reached Postgres (a dropped
// connection, a context timeout) carry no PgError at all and are
// treated as transient too, since they are exactly the "connection
// loss" case digest is meant to retry.
func IsTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return true
	}
	switch pgErr.Code[:2] {
	case "08", "40", "53", "57":
		return true
	default:
		return false
	}
}
