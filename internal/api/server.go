// Package api provides the HTTP server for ytdlhost.
// Clients submit downloads with an X-API-Key header, poll /status and
// fetch finished artifacts from /files.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytdlhost/ytdlhost/internal/app/orchestrator"
	"github.com/ytdlhost/ytdlhost/internal/domain"
	"github.com/ytdlhost/ytdlhost/internal/health"
	"github.com/ytdlhost/ytdlhost/internal/security"
)

// Server is the ytdlhost HTTP API server.
type Server struct {
	orch           *orchestrator.Orchestrator
	creds          domain.CredentialStore
	health         *health.Checker // nil disables detailed health output
	corsOrigins    []string
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(orch *orchestrator.Orchestrator, creds domain.CredentialStore) *Server {
	return &Server{orch: orch, creds: creds, corsOrigins: []string{"*"}}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth attaches the health checker reported by /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetCORSOrigins restricts Access-Control-Allow-Origin.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(s.requireKey)
		r.Post("/get_audio", s.handleSubmit(domain.TaskAudio))
		r.Post("/get_video", s.handleSubmit(domain.TaskVideo))
		r.Get("/quota", s.handleQuota)
	})

	r.With(middleware.Timeout(30*time.Second)).Get("/status/{task_id}", s.handleStatus)
	r.Get("/files/{task_id}/{filename}", s.handleFile)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Authentication ─────────────────────────────────────────────────────────

type ctxKey int

const credentialKey ctxKey = 0

// requireKey resolves X-API-Key to a stored credential. Secrets are only
// ever compared by hash.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if secret == "" {
			writeError(w, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}
		cred, err := s.creds.LookupCredentialByHash(r.Context(), security.HashSecret(secret))
		if err != nil {
			log.Printf("[api] credential lookup: %v", err)
			writeError(w, http.StatusInternalServerError, "credential lookup failed")
			return
		}
		if cred == nil || !security.Verify(secret, cred.SecretHash) {
			writeError(w, http.StatusUnauthorized, domain.ErrUnknownKey.Error())
			return
		}
		ctx := context.WithValue(r.Context(), credentialKey, cred)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func credentialFrom(ctx context.Context) *domain.Credential {
	cred, _ := ctx.Value(credentialKey).(*domain.Credential)
	return cred
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownKey):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAdmissionDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  msg,
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return ""
}
