package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)

		// Browsers cannot set headers on the upgrade, so the relay
		// authenticates with a ticket itself.
		r.Get(s.wsPath, s.handleWebSocket)

		// Protected when api.auth is enabled
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleStatus)

			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)

			// Topics contain '/', so the unsubscribe route takes the rest of the path.
			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", s.handleListSubscriptions)
				r.Post("/", s.handleSubscribe)
				r.Delete("/*", s.handleUnsubscribe)
			})

			r.Get("/events", s.handleListEvents)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
		})
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
