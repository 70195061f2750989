package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a ticket, validated in the handler.
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Post("/users", s.handleCreateUser)

			r.Route("/modules", func(r chi.Router) {
				r.Get("/", s.handleListModules)

				r.Route("/{moduleID}", func(r chi.Router) {
					r.Get("/", s.handleGetModule)
					r.Post("/claim", s.handleClaimModule)
					r.Get("/metrics", s.handleModuleMetrics)
					r.Get("/audit", s.handleModuleAudit)

					r.Put("/pins", s.handleConfigurePinCount)
					r.Route("/pins/{pinID}", func(r chi.Router) {
						r.Patch("/", s.handleRenamePin)
						r.Put("/state", s.handleSetPinState)
						r.Put("/group", s.handleAssignPinToGroup)
						r.Get("/history", s.handlePinHistory)
					})

					r.Post("/groups", s.handleAddGroup)
					r.Route("/groups/{groupID}", func(r chi.Router) {
						r.Patch("/", s.handleRenameGroup)
						r.Delete("/", s.handleDeleteGroup)
					})

					r.Route("/roles/{user}", func(r chi.Router) {
						r.Put("/", s.handleAssignUserRole)
						r.Delete("/", s.handleRevokeUserRole)
					})

					r.Route("/sensors/{sensorID}", func(r chi.Router) {
						r.Get("/", s.handleSensorMetrics)
						r.Put("/calibration", s.handleCalibrateSensor)
					})
				})
			})
		})
	})

	return r
}

// wsPath returns the configured WebSocket route, relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}
