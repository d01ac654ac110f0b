package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleHealth returns the liveness status plus the last cached
// counts. It never touches the database directly — RunHealthRefresher
// keeps the cache warm on its own schedule, so this handler never
// blocks the request path on a query.
func (s *Server) handleHealth(c echo.Context) error {
	stats := s.cachedHealth()
	if stats == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "starting",
			"message": "health stats not yet populated",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"archives":     stats.Archives,
		"reports":      stats.Reports,
		"issues":       stats.Issues,
		"queued":       stats.Queued,
		"queue_errors": stats.Errored,
	})
}

// handleMetrics serves Prometheus text exposition format.
func (s *Server) handleMetrics(c echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
