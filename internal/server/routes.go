package server

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// --- Sentry-compatible ingest endpoints (DSN key auth, checked
	// inside the handler rather than as middleware, since the key also
	// determines which project's rate-limit bucket applies). ---
	s.echo.POST("/api/:project_id/store/", s.handleStore)
	s.echo.POST("/api/:project_id/envelope/", s.handleEnvelope)

	// --- Operational endpoints (no auth). ---
	s.echo.GET("/health", s.handleHealth)
	if s.cfg.MetricsEnabled {
		s.echo.GET("/metrics", s.handleMetrics)
	}

	// --- Admin-gated management API. ---
	admin := s.echo.Group("/admin", s.adminAuth)
	admin.POST("/projects", s.handleCreateProject)
	admin.GET("/projects", s.handleListProjects)
	admin.DELETE("/projects/:id", s.handleDeleteProject)
	admin.POST("/archives/export", s.handleExportArchives)
	admin.POST("/archives/import", s.handleImportArchives)
	admin.POST("/ruminate", s.handleRuminate)
}
