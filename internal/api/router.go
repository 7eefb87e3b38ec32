package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/airsense-core/internal/auth"
)

// healthCheckTimeout bounds the per-request component checks on /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	// Broker hooks. Called by the broker on every connect and every
	// publish/subscribe, so they are not rate limited; the shared secret
	// keeps other callers from using them as a password oracle.
	r.Route("/mqtt", func(r chi.Router) {
		r.Use(s.requireBrokerSecret)
		r.Post("/auth", s.handleBrokerAuth)
		r.Post("/acl", s.handleBrokerACL)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/health", s.handleHealth)

		r.Route("/device", func(r chi.Router) {
			r.Get("/", s.handleDeviceRoom)
			r.Get("/fan-speed", s.handleDeviceFanSpeed)
		})

		r.Route("/rooms/{roomID}/curves/{parameter}", func(r chi.Router) {
			r.With(s.requirePermission(auth.PermCurveRead)).Get("/", s.handleGetCurve)
			r.With(s.requirePermission(auth.PermCurveWrite)).Put("/", s.handleUpdateCurve)
		})

		if s.audit != nil {
			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		}
	})

	return r
}

// handleHealth reports the status of every registered component.
// Any failing component turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.health[name].HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
