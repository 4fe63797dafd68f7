package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/busprobridge/core/internal/authcheck"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.securityHeadersMiddleware)

	// Health check is never behind auth — it's consulted by orchestrators
	// that have no credentials of their own.
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(authcheck.Middleware(s.authCfg))

		r.Get("/api/v1/snapshot", s.handleSnapshot)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
