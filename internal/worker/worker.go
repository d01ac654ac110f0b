// Package worker implements the digest loop: claiming queued archives,
// decompressing and parsing their Sentry payload, resolving dimension
// rows, computing an issue fingerprint, and writing the final report
// row. Fatal errors (malformed payloads, data the parser can never
// accept) quarantine the archive into queue_error; transient errors
// (a database hiccup) leave it in queue for the next tick.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/apperr"
	"github.com/primal-host/crashkeep/internal/codec"
	"github.com/primal-host/crashkeep/internal/database"
	"github.com/primal-host/crashkeep/internal/fingerprint"
	"github.com/primal-host/crashkeep/internal/metrics"
	"github.com/primal-host/crashkeep/internal/sentry"
)

// Worker drives the periodic digest tick.
type Worker struct {
	store           *database.Store
	log             *zap.Logger
	interval        time.Duration
	batchSize       int
	maxUncompressed int64
}

// New creates a Worker.
func New(store *database.Store, log *zap.Logger, interval time.Duration, batchSize int, maxUncompressed int64) *Worker {
	return &Worker{
		store:           store,
		log:             log,
		interval:        interval,
		batchSize:       batchSize,
		maxUncompressed: maxUncompressed,
	}
}

// Run ticks until ctx is cancelled. The in-flight tick, if any, is
// allowed to finish before Run returns — each digestOne call commits
// or rolls back its own transaction, so there is never partial state
// to clean up on shutdown.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	hashes, err := w.store.ClaimBatch(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("claim batch failed", zap.Error(err))
		return
	}
	if len(hashes) == 0 {
		return
	}
	metrics.DigestBatchesTotal.Inc()

	for _, hash := range hashes {
		start := time.Now()
		err := w.digestOne(ctx, hash)
		metrics.DigestDurationSeconds.Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			metrics.DigestArchivesTotal.WithLabelValues("ok").Inc()
		case apperr.IsTransient(err):
			w.log.Warn("digest transient failure, retrying next tick", zap.String("hash", hash), zap.Error(err))
			metrics.DigestArchivesTotal.WithLabelValues("transient").Inc()
		default:
			if merr := w.store.MoveToQueueError(ctx, hash, err.Error()); merr != nil {
				w.log.Error("failed to quarantine archive", zap.String("hash", hash), zap.Error(merr))
			}
			metrics.DigestArchivesTotal.WithLabelValues("fatal").Inc()
		}
	}
}

// digestOne decompresses and parses one archive and commits its
// dimension rows, issue, and report in a single transaction, finally
// deleting its queue row.
func (w *Worker) digestOne(ctx context.Context, hash string) error {
	arc, err := w.store.GetArchive(ctx, hash)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: load archive %s: %v", apperr.ErrDigestFatal, hash, err)
		}
		return classify(err)
	}

	decompressed, err := codec.Decompress(arc.CompressedPayload, w.maxUncompressed)
	if err != nil {
		return fmt.Errorf("%w: decompress %s: %v", apperr.ErrDigestFatal, hash, err)
	}

	var report *sentry.Report
	var sessions []*sentry.SentrySession

	if arc.IsEnvelope {
		env, err := sentry.ParseEnvelope(decompressed)
		if err != nil {
			return fmt.Errorf("%w: parse envelope %s: %v", apperr.ErrDigestFatal, hash, err)
		}
		w.log.Debug("digesting envelope",
			zap.String("archive", hash),
			zap.String("dsn", env.Header.DSN),
			zap.String("sdk", env.Header.SDK),
			zap.String("sent_at", env.Header.SentAt))
		report, sessions = env.Event, env.Sessions
	} else {
		report, err = sentry.ParseStore(decompressed)
		if err != nil {
			return fmt.Errorf("%w: parse store event %s: %v", apperr.ErrDigestFatal, hash, err)
		}
	}

	err = w.store.DigestTransaction(ctx, func(tx database.Tx) error {
		// An envelope may carry several session updates; each is
		// resolved and upserted in order. The report, if any, is
		// associated with the last one digested.
		var sessionRowID *int64
		for _, sess := range sessions {
			id, err := w.digestSession(ctx, tx, arc.ProjectID, sess)
			if err != nil {
				return err
			}
			sessionRowID = &id
		}

		if report != nil {
			if err := w.digestReport(ctx, tx, arc, report, sessionRowID); err != nil {
				return err
			}
		}

		return w.store.DeleteQueueRow(ctx, tx, hash)
	})
	// Begin, commit, and the queue-row delete return unclassified store
	// errors; everything else is already wrapped fatal or transient.
	if err != nil && !errors.Is(err, apperr.ErrDigestFatal) && !errors.Is(err, apperr.ErrDigestTransient) {
		return classify(err)
	}
	return err
}

// classify wraps a store-layer error as fatal or transient depending on
// its underlying SQLSTATE. Connection loss and serialization failures
// are retried (ErrDigestTransient); constraint violations and other
// data-level errors never will succeed on retry, so they are quarantined
// (ErrDigestFatal) instead of looping forever.
func classify(err error) error {
	if database.IsTransientError(err) {
		return fmt.Errorf("%w: %v", apperr.ErrDigestTransient, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrDigestFatal, err)
}

func (w *Worker) digestReport(ctx context.Context, tx database.Tx, arc *database.Archive, r *sentry.Report, sessionRowID *int64) error {
	platformID, err := w.optionalDim(ctx, tx, "unwrap_platform", r.Platform)
	if err != nil {
		return err
	}
	environmentID, err := w.optionalDim(ctx, tx, "unwrap_environment", r.Environment)
	if err != nil {
		return err
	}
	osNameID, err := w.optionalDim(ctx, tx, "unwrap_os_name", r.OSName)
	if err != nil {
		return err
	}
	osVersionID, err := w.optionalDim(ctx, tx, "unwrap_os_version", r.OSVersion)
	if err != nil {
		return err
	}
	manufacturerID, err := w.optionalDim(ctx, tx, "unwrap_manufacturer", r.Manufacturer)
	if err != nil {
		return err
	}
	brandID, err := w.optionalDim(ctx, tx, "unwrap_brand", r.Brand)
	if err != nil {
		return err
	}
	modelID, err := w.optionalDim(ctx, tx, "unwrap_model", r.Model)
	if err != nil {
		return err
	}
	chipsetID, err := w.optionalDim(ctx, tx, "unwrap_chipset", r.Chipset)
	if err != nil {
		return err
	}
	localeCodeID, err := w.optionalDim(ctx, tx, "unwrap_locale_code", r.LocaleCode)
	if err != nil {
		return err
	}
	timezoneID, err := w.optionalDim(ctx, tx, "unwrap_timezone", r.Timezone)
	if err != nil {
		return err
	}
	connectionTypeID, err := w.optionalDim(ctx, tx, "unwrap_connection_type", r.ConnectionType)
	if err != nil {
		return err
	}
	orientationID, err := w.optionalDim(ctx, tx, "unwrap_orientation", r.Orientation)
	if err != nil {
		return err
	}
	appNameID, err := w.optionalDim(ctx, tx, "unwrap_app_name", r.AppName)
	if err != nil {
		return err
	}
	appVersionID, err := w.optionalDim(ctx, tx, "unwrap_app_version", r.AppVersion)
	if err != nil {
		return err
	}
	appBuildID, err := w.optionalDim(ctx, tx, "unwrap_app_build", r.AppBuild)
	if err != nil {
		return err
	}
	userID, err := w.optionalDim(ctx, tx, "unwrap_user", r.UserID)
	if err != nil {
		return err
	}
	exceptionTypeID, err := w.optionalDim(ctx, tx, "unwrap_exception_type", r.ExceptionType)
	if err != nil {
		return err
	}

	var exceptionMessageID *int64
	if r.ExceptionMessage != "" {
		hash := codec.Hash([]byte(r.ExceptionMessage))
		id, err := w.store.GetOrInsertExceptionMessage(ctx, tx, hash, r.ExceptionMessage)
		if err != nil {
			return classify(err)
		}
		exceptionMessageID = &id
	}

	var stacktraceID *int64
	fpFrames := toFingerprintFrames(r.Frames)
	fp := fingerprint.Compute(r.ExceptionType, r.ExceptionMessage, fpFrames)
	if len(r.Frames) > 0 {
		framesJSON, err := json.Marshal(r.Frames)
		if err != nil {
			return fmt.Errorf("%w: marshal frames: %v", apperr.ErrDigestFatal, err)
		}
		hash := codec.Hash(framesJSON)
		id, err := w.store.GetOrInsertStacktrace(ctx, tx, hash, fp.FingerprintHash, framesJSON)
		if err != nil {
			return classify(err)
		}
		stacktraceID = &id
	}

	var deviceSpecsID *int64
	if !r.DeviceSpecs.IsZero() {
		id, err := w.store.GetOrInsertDeviceSpecs(ctx, tx, r.DeviceSpecs)
		if err != nil {
			return classify(err)
		}
		deviceSpecsID = &id
	}

	issueID, err := w.store.UpsertIssue(ctx, tx, fp.FingerprintHash, exceptionTypeID, fp.Title, r.Timestamp)
	if err != nil {
		return classify(err)
	}

	row := database.ReportRow{
		EventID:            r.EventID,
		ArchiveHash:        arc.Hash,
		ProjectID:          arc.ProjectID,
		Timestamp:          r.Timestamp,
		IssueID:            &issueID,
		SessionID:          sessionRowID,
		PlatformID:         platformID,
		EnvironmentID:      environmentID,
		OSNameID:           osNameID,
		OSVersionID:        osVersionID,
		ManufacturerID:     manufacturerID,
		BrandID:            brandID,
		ModelID:            modelID,
		ChipsetID:          chipsetID,
		DeviceSpecsID:      deviceSpecsID,
		LocaleCodeID:       localeCodeID,
		TimezoneID:         timezoneID,
		ConnectionTypeID:   connectionTypeID,
		OrientationID:      orientationID,
		AppNameID:          appNameID,
		AppVersionID:       appVersionID,
		AppBuildID:         appBuildID,
		UserID:             userID,
		ExceptionTypeID:    exceptionTypeID,
		ExceptionMessageID: exceptionMessageID,
		StacktraceID:       stacktraceID,
	}

	if _, err := w.store.InsertReport(ctx, tx, row); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			w.log.Debug("report already recorded, treating archive as digested", zap.String("event_id", r.EventID))
			return nil
		}
		return classify(err)
	}
	return nil
}

func (w *Worker) digestSession(ctx context.Context, tx database.Tx, projectID int64, sess *sentry.SentrySession) (int64, error) {
	statusID, err := w.store.GetOrInsertDimension(ctx, tx, "unwrap_session_status", sess.Status)
	if err != nil {
		return 0, classify(err)
	}
	releaseID, err := w.optionalDim(ctx, tx, "unwrap_session_release", sess.Release)
	if err != nil {
		return 0, err
	}
	environmentID, err := w.optionalDim(ctx, tx, "unwrap_session_environment", sess.Environment)
	if err != nil {
		return 0, err
	}

	timestamp := sess.Started + int64(sess.Duration)
	params := database.UpsertSessionParams{
		ProjectID:     projectID,
		SID:           sess.SessionID,
		Init:          sess.Init,
		StartedAt:     sess.Started,
		Timestamp:     timestamp,
		Errors:        sess.Errors,
		StatusID:      statusID,
		ReleaseID:     releaseID,
		EnvironmentID: environmentID,
	}

	id, err := w.store.UpsertSession(ctx, tx, params)
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (w *Worker) optionalDim(ctx context.Context, tx database.Tx, table, value string) (*int64, error) {
	if value == "" {
		return nil, nil
	}
	id, err := w.store.GetOrInsertDimension(ctx, tx, table, value)
	if err != nil {
		return nil, classify(err)
	}
	return &id, nil
}

func toFingerprintFrames(frames []sentry.Frame) []fingerprint.Frame {
	out := make([]fingerprint.Frame, len(frames))
	for i, f := range frames {
		out[i] = fingerprint.Frame{
			Function: f.Function,
			Module:   f.Module,
			Package:  f.Package,
			Filename: f.Filename,
			AbsPath:  f.AbsPath,
			InApp:    f.InApp,
		}
	}
	return out
}
