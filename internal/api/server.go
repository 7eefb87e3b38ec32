package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/airsense-core/internal/audit"
	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Authenticator answers broker hooks. Implemented by auth.Bridge.
type Authenticator interface {
	Authenticate(ctx context.Context, req auth.AuthRequest) (auth.Decision, error)
	Authorize(ctx context.Context, req auth.ACLRequest) (auth.Decision, error)
}

// DeviceRegistry is the device surface used by the device endpoints.
type DeviceRegistry interface {
	GetDeviceBySerial(ctx context.Context, serial string) (*device.Device, error)
	ClaimFanSpeed(ctx context.Context, deviceID int64) (*int, error)
}

// CurveService reads and writes fan curves. Implemented by fancurve.Service.
type CurveService interface {
	Get(ctx context.Context, roomID int64, parameter string) (*fancurve.Curve, error)
	Update(ctx context.Context, roomID int64, parameter string, curve fancurve.Curve) error
}

// HealthChecker is any component that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Bridge   Authenticator
	Devices  DeviceRegistry
	Curves   CurveService
	Audit    audit.Repository         // optional; curve changes are not recorded when nil
	Health   map[string]HealthChecker // keyed by component name in /health output
	Version  string
}

// Server is the HTTP API server for the Airsense backend.
//
// It serves the broker's auth/ACL hooks, the device endpoints and the curve
// admin API. The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	bridge  Authenticator
	devices DeviceRegistry
	curves  CurveService
	audit   audit.Repository
	health  map[string]HealthChecker
	version string
	limiter *ipLimiter
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("auth bridge is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Curves == nil {
		return nil, fmt.Errorf("curve service is required")
	}

	s := &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		devices: deps.Devices,
		curves:  deps.Curves,
		audit:   deps.Audit,
		health:  deps.Health,
		version: deps.Version,
	}
	if deps.Security.BrokerHooks.Secret == "" {
		s.logger.Warn("broker hooks accept unauthenticated callers; set security.broker_hooks.secret")
	}
	if rl := deps.Security.RateLimit; rl.Enabled {
		s.limiter = newIPLimiter(rl.RequestsPerMinute, rl.Burst)
	}
	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
