// Package api provides the HTTP REST API and WebSocket server for Glove Core.
//
// It exposes account, device registry, binding lifecycle, telemetry query
// and learning progress endpoints to operator dashboards and companion apps.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/glovelink/glove-core/internal/auth"
	"github.com/glovelink/glove-core/internal/binding"
	"github.com/glovelink/glove-core/internal/device"
	"github.com/glovelink/glove-core/internal/infrastructure/config"
	"github.com/glovelink/glove-core/internal/infrastructure/logging"
	"github.com/glovelink/glove-core/internal/infrastructure/mqtt"
	"github.com/glovelink/glove-core/internal/learning"
	"github.com/glovelink/glove-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// IngestMetricsProvider exposes gateway counters for the metrics endpoint.
// Satisfied by the MQTT telemetry gateway without a package dependency on it.
type IngestMetricsProvider interface {
	Processed() uint64
	Rejected() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	WS            config.WebSocketConfig
	Security      config.SecurityConfig
	Logger        *logging.Logger
	DB            *sql.DB
	Users         auth.UserRepository
	Devices       *device.Service
	Bindings      *binding.Manager
	Telemetry     *telemetry.Service
	Learning      *learning.Engine
	MQTT          *mqtt.Client          // optional: broker status in metrics
	IngestMetrics IngestMetricsProvider // optional: gateway counters in metrics
	ExternalHub   *Hub                  // if set, the server uses this hub instead of creating its own
	Version       string
}

// Server is the HTTP API server for Glove Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	secCfg        config.SecurityConfig
	logger        *logging.Logger
	db            *sql.DB
	users         auth.UserRepository
	devices       *device.Service
	bindings      *binding.Manager
	telemetry     *telemetry.Service
	learning      *learning.Engine
	mqtt          *mqtt.Client
	ingestMetrics IngestMetricsProvider
	version       string
	startTime     time.Time
	server        *http.Server
	hub           *Hub
	externalHub   bool // true if hub was injected externally
	wsTickets     *ticketStore
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, stores, services)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}
	if deps.Bindings == nil {
		return nil, fmt.Errorf("binding manager is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry service is required")
	}
	if deps.Learning == nil {
		return nil, fmt.Errorf("learning engine is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		db:            deps.DB,
		users:         deps.Users,
		devices:       deps.Devices,
		bindings:      deps.Bindings,
		telemetry:     deps.Telemetry,
		learning:      deps.Learning,
		mqtt:          deps.MQTT,
		ingestMetrics: deps.IngestMetrics,
		version:       deps.Version,
		startTime:     time.Now(),
		wsTickets:     newTicketStore(),
	}

	// Use externally-provided hub if available (needed when the ingest
	// pipeline also requires the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it on first use. The
// ingest pipeline takes this as its broadcaster.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally or created
	// earlier via Hub())
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Start periodic ticket cleanup to prevent memory leaks
	go s.cleanTicketsLoop(srvCtx)

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
