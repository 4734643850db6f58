package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/thinglink-core/internal/auth"
)

// healthCheckTimeout bounds each dependency check on GET /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/pairing", func(r chi.Router) {
				r.With(s.require(auth.PermPairingRead)).Get("/", s.handleGetPairing)

				r.Group(func(r chi.Router) {
					r.Use(s.require(auth.PermPairingManage))
					r.Post("/mode", s.handleSelectMode)
					r.Post("/scan/stop", s.handleStopScan)
					r.Post("/select", s.handleSelectDevice)
					r.Post("/mode-switch", s.handleModeSwitch)
					r.Post("/activate", s.handleActivate)
					r.Post("/cancel", s.handleCancel)
					r.Post("/reset", s.handleReset)
				})
			})

			r.Route("/devices", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.require(auth.PermDeviceRemove)).Delete("/", s.handleDeleteDevice)
					r.With(s.require(auth.PermDeviceRead)).Get("/status", s.handleGetStatus)
					r.With(s.require(auth.PermDeviceOperate), s.rateLimitMiddleware).Post("/commands", s.handleCommand)
				})
			})

			r.With(s.require(auth.PermDeviceRead)).Get("/datapoints", s.handleListDataPoints)
			r.With(s.require(auth.PermSystemAdmin)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth reports the server and every registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	healthy := true
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
