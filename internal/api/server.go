package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/controller"
	"github.com/wavehub/pincore/internal/infrastructure/config"
	"github.com/wavehub/pincore/internal/infrastructure/database"
	"github.com/wavehub/pincore/internal/infrastructure/logging"
	"github.com/wavehub/pincore/internal/module"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ModuleService is the module controller as seen by HTTP handlers.
// Satisfied by *controller.Controller.
type ModuleService interface {
	GetModule(ctx context.Context, creds auth.Credentials, moduleID string) (*controller.ModuleView, error)
	ListModules(ctx context.Context, creds auth.Credentials) ([]module.UserModule, error)
	ClaimModule(ctx context.Context, creds auth.Credentials, moduleID, secret string) (*controller.ModuleView, error)
	ConfigurePinCount(ctx context.Context, creds auth.Credentials, moduleID string, count int) (*controller.ModuleView, error)
	SetPinState(ctx context.Context, creds auth.Credentials, moduleID, pinID string, cmd controller.PinCommand) (*module.Pin, error)
	AssignPinToGroup(ctx context.Context, creds auth.Credentials, moduleID, pinID, groupID string) (*module.Pin, error)
	RenamePin(ctx context.Context, creds auth.Credentials, moduleID, pinID, name, description string) (*module.Pin, error)
	PinHistory(ctx context.Context, creds auth.Credentials, moduleID, pinID string, limit int) ([]module.HistoryEntry, error)
	AddGroup(ctx context.Context, creds auth.Credentials, moduleID, name string) (*module.Group, error)
	RenameGroup(ctx context.Context, creds auth.Credentials, moduleID, groupID, name string) (*module.Group, error)
	DeleteGroup(ctx context.Context, creds auth.Credentials, moduleID, groupID string) ([]string, error)
	AssignUserRole(ctx context.Context, creds auth.Credentials, moduleID, target string, role auth.Role) (*controller.RoleGrant, error)
	RevokeUserRole(ctx context.Context, creds auth.Credentials, moduleID, target string) error
	CalibrateSensor(ctx context.Context, creds auth.Credentials, moduleID, sensorID string, cal automation.Calibration) (*automation.SensorStats, error)
	ModuleMetrics(ctx context.Context, creds auth.Credentials, moduleID string) ([]automation.SensorStats, error)
	SensorMetrics(ctx context.Context, creds auth.Credentials, moduleID, sensorID string) (*automation.SensorStats, error)
	AuditLog(ctx context.Context, creds auth.Credentials, moduleID string, limit, offset int) (*audit.ListResult, error)
}

// Authenticator issues access tokens and manages accounts. Satisfied by
// *auth.Provider.
type Authenticator interface {
	auth.IdentityProvider
	Login(ctx context.Context, username, password string) (*auth.User, string, error)
	Register(ctx context.Context, username, displayName, password string) (*auth.User, error)
	TokenTTL() time.Duration
}

// ConnectionStatus reports whether an optional backend is reachable.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Modules ModuleService
	Auth    Authenticator
	Hub     *Hub
	DB      *database.DB
	MQTT    ConnectionStatus
	Influx  ConnectionStatus
	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	modules   ModuleService
	auth      Authenticator
	hub       *Hub
	db        *database.DB
	mqtt      ConnectionStatus
	influx    ConnectionStatus
	version   string
	tickets   *ticketStore
	startTime time.Time
	server    *http.Server
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. A hub is created when
// none is supplied; pass one in when the device sink must broadcast into it.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Modules == nil {
		return nil, fmt.Errorf("module service is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		modules:   deps.Modules,
		auth:      deps.Auth,
		hub:       hub,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		version:   deps.Version,
		tickets:   newTicketStore(),
		startTime: time.Now(),
	}, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
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

// HealthCheck verifies the API server has been started.
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
