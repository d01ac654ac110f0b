package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/analytics"
	"github.com/primal-host/crashkeep/internal/apperr"
	"github.com/primal-host/crashkeep/internal/archive"
	"github.com/primal-host/crashkeep/internal/codec"
	"github.com/primal-host/crashkeep/internal/metrics"
	"github.com/primal-host/crashkeep/internal/ratelimit"
	"github.com/primal-host/crashkeep/internal/sentry"
)

// handleStore accepts the legacy single-event /api/{project_id}/store/
// body.
func (s *Server) handleStore(c echo.Context) error {
	return s.ingest(c, false)
}

// handleEnvelope accepts the newline-delimited multi-item
// /api/{project_id}/envelope/ body.
func (s *Server) handleEnvelope(c echo.Context) error {
	return s.ingest(c, true)
}

// ingest implements the C6 ingest flow shared by both endpoints:
// resolve the DSN key to a project, rate-limit in tier order, size-cap
// and compress the payload, write it content-addressed, and enqueue it
// for the digest worker. Parsing the event body fully is the digest
// worker's job — ingest only peeks at the event id to echo back.
func (s *Server) ingest(c echo.Context, isEnvelope bool) error {
	start := time.Now()
	ctx := c.Request().Context()
	endpoint := c.Path()

	publicKey := extractDSNKey(c)
	if publicKey == "" {
		return errJSON(c, http.StatusUnauthorized, "AuthRequired", "missing Sentry DSN key")
	}

	pathProjectID, err := strconv.ParseInt(c.Param("project_id"), 10, 64)
	if err != nil {
		return errJSON(c, http.StatusUnauthorized, "AuthRequired", "invalid public key")
	}

	projectID, found, err := s.projectCache.Resolve(ctx, publicKey)
	if err != nil {
		s.log.Error("project resolve failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to resolve project")
	}
	// A valid key must also belong to the project named in the path —
	// otherwise a key from one project could ingest into another's
	// project_id. The same response serves both "key unknown" and "key
	// doesn't match this project_id" so neither case lets a caller
	// enumerate which project_ids exist.
	if !found || projectID != pathProjectID {
		metrics.IngestRequestsTotal.WithLabelValues(endpoint, "unknown_project").Inc()
		return errJSON(c, http.StatusUnauthorized, "AuthRequired", "invalid public key")
	}

	remoteAddr := c.Request().RemoteAddr
	if tier := s.limiter.Allow(remoteAddr, projectID); tier != ratelimit.TierNone {
		s.recordRateLimitRejection(tier, remoteAddr, projectID)
		return errJSON(c, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, s.cfg.MaxUncompressedPayloadBytes*2+1024))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "ReadError", "failed to read request body")
	}

	gzipped := strings.EqualFold(c.Request().Header.Get("Content-Encoding"), "gzip")

	compressed, decompressed, originalSize, err := s.prepareArchive(ctx, body, gzipped)
	if err != nil {
		metrics.IngestRequestsTotal.WithLabelValues(endpoint, "rejected").Inc()
		return errJSON(c, statusForErr(err), "InvalidPayload", err.Error())
	}

	eventID := peekEventID(decompressed, isEnvelope)

	// original_size is recorded only when the server did the compression.
	var origSize *int64
	if !gzipped {
		origSize = &originalSize
	}

	if _, err := archive.Ingest(ctx, s.store, projectID, compressed, origSize, isEnvelope); err != nil {
		s.log.Error("archive ingest failed", zap.Error(err), zap.Int64("project_id", projectID))
		metrics.IngestRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to store payload")
	}

	metrics.IngestRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	metrics.IngestBytesTotal.Add(float64(len(compressed)))
	elapsed := time.Since(start)
	metrics.IngestLatencySeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	s.sink.Send(analytics.Event{
		Kind:     analytics.EventRequestLatency,
		Endpoint: endpoint,
		Millis:   float64(elapsed.Microseconds()) / 1000,
	})

	return c.JSON(http.StatusOK, map[string]string{"id": eventID})
}

func (s *Server) recordRateLimitRejection(tier ratelimit.Tier, remoteAddr string, projectID int64) {
	metrics.RateLimitRejectionsTotal.WithLabelValues(tierLabel(tier)).Inc()

	switch tier {
	case ratelimit.TierSubnet:
		s.sink.Send(analytics.Event{Kind: analytics.EventRateLimitSubnet, Subnet: ratelimit.SubnetKey(remoteAddr)})
	case ratelimit.TierProject:
		s.sink.Send(analytics.Event{Kind: analytics.EventRateLimitProject, ProjectID: projectID})
	default:
		s.sink.Send(analytics.Event{Kind: analytics.EventRateLimitGlobal})
	}
}

func tierLabel(tier ratelimit.Tier) string {
	switch tier {
	case ratelimit.TierGlobal:
		return "global"
	case ratelimit.TierSubnet:
		return "subnet"
	case ratelimit.TierProject:
		return "project"
	default:
		return "none"
	}
}

// prepareArchive normalizes the raw request body into the bytes
// actually written to the archive table, alongside a decompressed
// copy for peeking the event id. If the client already gzipped the
// body, it is decompressed once to verify the uncompressed size cap
// and stored as-is. Otherwise it is compressed under the concurrency
// semaphore and the raw body becomes the "decompressed" copy.
func (s *Server) prepareArchive(ctx context.Context, body []byte, gzipped bool) (compressed, decompressed []byte, originalSize int64, err error) {
	if gzipped {
		out, err := codec.Decompress(body, s.cfg.MaxUncompressedPayloadBytes)
		if err != nil {
			return nil, nil, 0, err
		}
		return body, out, int64(len(out)), nil
	}

	if int64(len(body)) > s.cfg.MaxUncompressedPayloadBytes {
		return nil, nil, 0, apperr.ErrPayloadOversize
	}

	if err := s.sem.Acquire(ctx); err != nil {
		return nil, nil, 0, err
	}
	defer s.sem.Release()

	out, err := codec.Compress(body, s.cfg.MaxCompressedPayloadBytes)
	if err != nil {
		return nil, nil, 0, err
	}
	return out, body, int64(len(body)), nil
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, apperr.ErrPayloadOversize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrBadCompression):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// extractDSNKey reads the Sentry DSN public key from the X-Sentry-Auth
// header (the standard SDK transport) or, failing that, the
// ?sentry_key= query parameter some older/embedded clients use.
func extractDSNKey(c echo.Context) string {
	if auth := c.Request().Header.Get("X-Sentry-Auth"); auth != "" {
		if key := parseSentryAuthHeader(auth); key != "" {
			return key
		}
	}
	return c.QueryParam("sentry_key")
}

// parseSentryAuthHeader parses a header of the form:
//
//	Sentry sentry_version=7, sentry_key=abc123, sentry_client=sentry.python/1.0
func parseSentryAuthHeader(header string) string {
	header = strings.TrimPrefix(header, "Sentry ")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if ok && strings.TrimSpace(k) == "sentry_key" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// peekEventID extracts the event id from a payload without running
// the full parser, so the ingest response can echo it back
// immediately. A missing or malformed id falls back to a freshly
// generated one — digest-time parsing is the source of truth for
// whether the event itself is well-formed.
func peekEventID(data []byte, isEnvelope bool) string {
	line := data
	if isEnvelope {
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
			line = data[:idx]
		}
	}

	var h struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(line, &h); err == nil {
		if id := sentry.NormalizeEventID(h.EventID); id != "" {
			return id
		}
	}
	return sentry.NormalizeEventID(uuid.NewString())
}
