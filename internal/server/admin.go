package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/primal-host/crashkeep/internal/apperr"
	"github.com/primal-host/crashkeep/internal/archive"
	"github.com/primal-host/crashkeep/internal/database"
	"github.com/primal-host/crashkeep/internal/project"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

// handleCreateProject generates a DSN public key and inserts a new
// project row.
func (s *Server) handleCreateProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return errJSON(c, http.StatusBadRequest, "InvalidRequest", "name is required")
	}

	key, err := project.GenerateKey()
	if err != nil {
		s.log.Error("key generation failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to generate key")
	}

	p, err := s.store.CreateProject(c.Request().Context(), key, req.Name)
	if err != nil {
		s.log.Error("create project failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to create project")
	}
	return c.JSON(http.StatusOK, p)
}

// handleListProjects returns every project.
func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.store.ListProjects(c.Request().Context())
	if err != nil {
		s.log.Error("list projects failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to list projects")
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": projects})
}

// handleDeleteProject removes a project by path id.
func (s *Server) handleDeleteProject(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "InvalidRequest", "id must be an integer")
	}

	if err := s.store.DeleteProject(c.Request().Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return errJSON(c, http.StatusNotFound, "ProjectNotFound", "no project with that id")
		}
		s.log.Error("delete project failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to delete project")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "project deleted"})
}

// exportedArchive is the export/import wire shape for one archive row.
// The payload travels as base64 text rather than raw bytes since the
// export endpoint answers with JSON, matching the management API's
// other responses.
type exportedArchive struct {
	Hash              string `json:"hash"`
	ProjectID         int64  `json:"project_id"`
	CompressedPayload string `json:"compressed_payload"`
	OriginalSize      *int64 `json:"original_size"`
	IsEnvelope        bool   `json:"is_envelope"`
}

// handleExportArchives dumps every archive row for operator-driven
// backup or migration between crashkeep instances.
func (s *Server) handleExportArchives(c echo.Context) error {
	archives, err := s.store.ListArchives(c.Request().Context())
	if err != nil {
		s.log.Error("export archives failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to list archives")
	}

	out := make([]exportedArchive, 0, len(archives))
	for _, a := range archives {
		out = append(out, exportedArchive{
			Hash:              a.Hash,
			ProjectID:         a.ProjectID,
			CompressedPayload: base64.StdEncoding.EncodeToString(a.CompressedPayload),
			OriginalSize:      a.OriginalSize,
			IsEnvelope:        a.IsEnvelope,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"archives": out})
}

// handleImportArchives re-ingests a previously exported archive set,
// re-enqueueing any archive that is new to this instance.
func (s *Server) handleImportArchives(c echo.Context) error {
	var req struct {
		Archives []exportedArchive `json:"archives"`
	}
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
	}

	ctx := c.Request().Context()
	imported, skipped := 0, 0
	for _, a := range req.Archives {
		payload, err := base64.StdEncoding.DecodeString(a.CompressedPayload)
		if err != nil {
			return errJSON(c, http.StatusBadRequest, "InvalidRequest", "malformed compressed_payload for "+a.Hash)
		}
		result, err := archive.Ingest(ctx, s.store, a.ProjectID, payload, a.OriginalSize, a.IsEnvelope)
		if err != nil {
			s.log.Error("import archive failed", zap.String("hash", a.Hash), zap.Error(err))
			return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to import "+a.Hash)
		}
		if result.Outcome == database.Inserted {
			imported++
		} else {
			skipped++
		}
	}

	return c.JSON(http.StatusOK, map[string]int{"imported": imported, "skipped": skipped})
}

// handleRuminate re-enqueues archives that have neither a queue row, a
// queue_error row, nor a report — archives the digest worker somehow
// never claimed or whose queue row was lost. Named after the governing
// spec's operator-triggered reconciliation pass.
func (s *Server) handleRuminate(c echo.Context) error {
	ctx := c.Request().Context()
	orphans, err := s.store.OrphanArchiveHashes(ctx)
	if err != nil {
		s.log.Error("ruminate scan failed", zap.Error(err))
		return errJSON(c, http.StatusInternalServerError, "InternalError", "failed to scan for orphans")
	}

	requeued := 0
	for _, hash := range orphans {
		if err := s.store.Enqueue(ctx, hash); err != nil {
			s.log.Error("ruminate requeue failed", zap.String("hash", hash), zap.Error(err))
			continue
		}
		requeued++
	}

	return c.JSON(http.StatusOK, map[string]int{"requeued": requeued, "found": len(orphans)})
}
