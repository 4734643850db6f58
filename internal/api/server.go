package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/thinglink-core/internal/audit"
	"github.com/nerrad567/thinglink-core/internal/auth"
	"github.com/nerrad567/thinglink-core/internal/control"
	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/logging"
	"github.com/nerrad567/thinglink-core/internal/metrics"
	"github.com/nerrad567/thinglink-core/internal/pairing"
	"github.com/nerrad567/thinglink-core/internal/provider"
	"github.com/nerrad567/thinglink-core/internal/status"
	"github.com/nerrad567/thinglink-core/internal/subscription"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HomeEventSource delivers provider home changes. *provider.Dispatcher
// satisfies it.
type HomeEventSource interface {
	OnHomeEvent(fn func(provider.HomeEvent)) func()
}

// DeviceRemover unbinds a device at the provider. *provider.Client
// satisfies it.
type DeviceRemover interface {
	RemoveDevice(ctx context.Context, deviceID string) error
}

// HealthCheck is one named dependency check for GET /health.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Coordinator *pairing.Coordinator
	Status      *status.Store
	Controller  *control.Controller
	Codec       *datapoint.Codec
	Devices     *device.Registry

	// Optional.
	Issuer      *auth.Issuer // nil disables bearer auth
	HomeSubs    *subscription.Manager
	HomeEvents  HomeEventSource
	Remover     DeviceRemover
	Audit       *audit.Trail
	Metrics     *metrics.Metrics
	HealthCheck map[string]HealthCheck
	Version     string
}

// Server is the HTTP API server for ThingLink Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	coordinator *pairing.Coordinator
	status      *status.Store
	controller  *control.Controller
	codec       *datapoint.Codec
	devices     *device.Registry
	issuer      *auth.Issuer
	homeEvents  HomeEventSource
	remover     DeviceRemover
	audit       *audit.Trail
	metrics     *metrics.Metrics
	checks      map[string]HealthCheck
	version     string

	hub      *Hub
	tickets  *ticketStore
	limiter  *clientLimiter
	handler  http.Handler
	server   *http.Server
	cancel   context.CancelFunc
	relayers sync.WaitGroup
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Coordinator == nil:
		return nil, fmt.Errorf("pairing coordinator is required")
	case deps.Status == nil:
		return nil, fmt.Errorf("status store is required")
	case deps.Controller == nil:
		return nil, fmt.Errorf("controller is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Codec == nil {
		deps.Codec = datapoint.NewCodec(nil)
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		status:      deps.Status,
		controller:  deps.Controller,
		codec:       deps.Codec,
		devices:     deps.Devices,
		issuer:      deps.Issuer,
		homeEvents:  deps.HomeEvents,
		remover:     deps.Remover,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		checks:      deps.HealthCheck,
		version:     deps.Version,
		tickets:     newTicketStore(ticketTTL),
	}

	if deps.Security.RateLimit.Enabled {
		s.limiter = newClientLimiter(deps.Security.RateLimit.RequestsPerMinute)
	}

	s.hub = NewHub(deps.WS, deps.Logger)
	if deps.HomeSubs != nil {
		s.hub.SetChannelHook(ChannelHomeChanged, deps.HomeSubs.Acquire, deps.HomeSubs.Release)
	}
	if deps.Metrics != nil {
		s.hub.onCount = deps.Metrics.SetWSClients
	}

	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start relays domain events to the hub and begins listening for HTTP
// connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.relayEvents(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
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
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.relayers.Wait()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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
