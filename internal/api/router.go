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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket upgrade. Browsers cannot set an Authorization header
		// on the handshake, so this sits outside the bearer-token group;
		// the single-use ticket validated in the handler is the auth.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			// WS ticket requires authentication - the ticket inherits the caller's identity
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/metrics", s.handleMetrics)

			// Account endpoints
			r.Route("/users", func(r chi.Router) {
				r.With(s.requireAdmin).Get("/", s.handleListUsers)
				r.With(s.requireAdmin).Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.With(s.requireAdmin).Patch("/", s.handleUpdateUser)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteUser)
					r.Post("/password", s.handleChangePassword)

					r.Get("/bindings", s.handleListUserBindings)
					r.Get("/learning", s.handleListLearningRecords)
					r.Get("/learning/totals", s.handleGetLearningTotals)
					r.Get("/learning/top", s.handleUserLearningTop)
					r.Get("/learning/{gesture}", s.handleGetLearningRecord)
				})
			})

			// Device registry endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.With(s.requireAdmin).Post("/", s.handleCreateDevice)
				r.Get("/stats", s.handleDeviceStats)

				r.Route("/by-hardware/{deviceID}", func(r chi.Router) {
					r.Get("/", s.handleGetDeviceByHardwareID)
					r.Get("/owner", s.handleGetDeviceOwner)
					r.With(s.requireAdmin).Get("/bindings", s.handleListDeviceBindings)
				})

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.With(s.requireAdmin).Patch("/", s.handleUpdateDevice)
					r.With(s.requireAdmin).Delete("/", s.handleDeleteDevice)
				})
			})

			// Binding lifecycle endpoints
			r.Route("/bindings", func(r chi.Router) {
				r.Post("/", s.handleBind)
				r.Post("/unbind", s.handleUnbind)
			})

			// Stored telemetry queries
			r.Route("/data", func(r chi.Router) {
				r.Get("/sensor-events", s.handleListSensorEvents)
				r.Get("/gesture-results", s.handleListGestureResults)
				r.Get("/stats", s.handleDataStats)
				r.With(s.requireAdmin).Delete("/sensor-events", s.handlePurgeSensorEvents)
			})

			// Learning leaderboard (cross-user, admin only)
			r.With(s.requireAdmin).Get("/learning/top", s.handleLearningLeaderboard)

			// HTTP ingest for gateways without broker access (admin credentials)
			r.Route("/ingest", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/sensor-events", s.handleIngestSensorEvent)
				r.Post("/gesture-results", s.handleIngestGestureResult)
				r.Post("/device-status", s.handleIngestDeviceStatus)
			})

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
