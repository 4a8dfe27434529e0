package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Action catalog
	r.Route("/action", func(r chi.Router) {
		r.Get("/", s.listActions)
		r.Post("/", s.createAction)

		r.Route("/{actionID}", func(r chi.Router) {
			r.Get("/", s.getAction)
			r.Patch("/", s.updateAction)
			r.Delete("/", s.deleteAction)
			r.Get("/decision", s.getDecision)
			r.Post("/invoke", s.invokeAction)
		})
	})

	// Permission records
	r.Route("/permission", func(r chi.Router) {
		r.Get("/", s.listPermissions)
		r.Put("/", s.updatePermission)
		r.Delete("/{permissionID}", s.deletePermission)
	})

	// Executions
	r.Route("/execution", func(r chi.Router) {
		r.Get("/", s.listExecutions)
		r.Post("/cleanup", s.cleanupExecutions)

		r.Route("/{executionID}", func(r chi.Router) {
			r.Get("/", s.getExecution)
			r.Post("/start", s.startExecution)
			r.Post("/complete", s.completeExecution)
			r.Post("/fail", s.failExecution)
			r.Post("/cancel", s.cancelExecution)
		})
	})

	// Confirmation requests
	r.Route("/pending", func(r chi.Router) {
		r.Get("/", s.listPending)
		r.Post("/{executionID}", s.respondPending)
	})

	// Tool permission matrix
	r.Route("/tool-permission", func(r chi.Router) {
		r.Get("/", s.getMatrix)
		r.Get("/allow-list", s.getAllowList)
		r.Put("/mode", s.setQuickMode)
		r.Put("/{tool}", s.setToolPermission)
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
