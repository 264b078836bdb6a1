package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/logging"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/journal"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Session is the part of *pubsub.Client the API drives.
type Session interface {
	Connect(cfg pubsub.Config) error
	Disconnect() error
	Subscribe(topics ...string) error
	Unsubscribe(topics ...string) error
	State() pubsub.ConnectionState
	Subscriptions() []pubsub.SubscriptionStatus
	PendingCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Session Session

	// Broker is the connection used by POST /connect.
	Broker pubsub.Config

	// Journal backs GET /events. Optional.
	Journal journal.Repository

	Version string
}

// Server is the HTTP API and WebSocket relay for one pub/sub session.
//
// It is created with New() and started with Start(). Events are pushed to
// WebSocket clients with Relay.
type Server struct {
	cfg     config.APIConfig
	wsPath  string
	relay   relayTiming
	logger  *logging.Logger
	session Session
	broker  pubsub.Config
	journal journal.Repository
	version string
	cors    corsPolicy
	tickets *ticketStore
	hub     *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	served   chan struct{}
}

// relayPath returns the configured WebSocket route, defaulting to /ws.
func relayPath(cfg config.WebSocketConfig) string {
	if cfg.Path == "" {
		return "/ws"
	}
	return cfg.Path
}

// New creates a new API server with the given dependencies.
//
// The hub is created immediately so events relayed before Start are not lost
// to a nil hub; they simply have no recipients.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("pubsub session is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsPath:  relayPath(deps.WS),
		relay:   newRelayTiming(deps.WS),
		logger:  deps.Logger,
		session: deps.Session,
		broker:  deps.Broker,
		journal: deps.Journal,
		version: deps.Version,
		cors:    newCORSPolicy(deps.Config.CORS),
		tickets: newTicketStore(ticketTTL),
		hub:     NewHub(deps.Logger),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// The hub is shut down when ctx is cancelled or Close is called.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.served = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server, s.served)

	return nil
}

// Addr returns the bound listener address, or "" when not serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Relay forwards a client event to WebSocket clients subscribed to its channel.
func (s *Server) Relay(ev pubsub.Event) {
	s.hub.Publish(channelFor(ev.Kind), newEventPayload(ev))
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel, served := s.server, s.cancel, s.served
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-served
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
