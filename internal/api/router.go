package api

import (
	"net/http"
	"strings"

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
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", s.handleListLocks)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLock)
					r.Get("/history", s.handleLockHistory)
					r.Post("/{command:(lock|unlock|refresh)}", s.handleLockCommand)
				})
			})

			r.Get(s.wsPath(), s.handleWebSocket)
		})
	})

	return r
}

// wsPath returns the configured WebSocket path under /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return "/" + strings.TrimPrefix(s.wsCfg.Path, "/")
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":            "ok",
		"version":           s.version,
		"locks":             len(s.locks.List()),
		"websocket_clients": s.hub.ClientCount(),
	}
	if s.devices != nil {
		body["devices"] = s.devices.GetStats()
	}
	writeJSON(w, http.StatusOK, body)
}
