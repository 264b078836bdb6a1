package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
)

const (
	// requestIDHeader carries the request ID in both directions.
	requestIDHeader = "X-Request-ID"

	// maxRequestIDLength caps client-supplied IDs before they reach the logs.
	maxRequestIDLength = 64

	// maxRequestBodySize is the largest accepted request body (1 MB).
	maxRequestBodySize = 1 << 20
)

type requestIDKey struct{}

// requestIDFrom returns the request ID stored by requestIDMiddleware, or "".
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string) //nolint:errcheck // Missing ID yields ""
	return id
}

// requestIDMiddleware reuses the caller's X-Request-ID or assigns a UUID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// loggingMiddleware logs one line per request once the handler returns.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestIDFrom(r.Context()),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// bodySizeLimitMiddleware caps request bodies at maxRequestBodySize.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// corsPolicy holds the Cross-Origin Resource Sharing headers, resolved once
// from configuration.
type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
	methods   string
	headers   string
}

// newCORSPolicy builds the policy. An empty origin list or "*" allows every origin.
func newCORSPolicy(cfg config.CORSConfig) corsPolicy {
	p := corsPolicy{
		anyOrigin: len(cfg.AllowedOrigins) == 0,
		origins:   make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:   "GET, POST, DELETE, OPTIONS",
		headers:   "Authorization, Content-Type, " + requestIDHeader,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			p.anyOrigin = true
		}
		p.origins[origin] = struct{}{}
	}
	if len(cfg.AllowedMethods) > 0 {
		p.methods = strings.Join(cfg.AllowedMethods, ", ")
	}
	if len(cfg.AllowedHeaders) > 0 {
		p.headers = strings.Join(cfg.AllowedHeaders, ", ")
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// corsMiddleware sets CORS headers for allowed origins and answers
// preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	p := s.cors
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && p.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", p.methods)
			h.Set("Access-Control-Allow-Headers", p.headers)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
