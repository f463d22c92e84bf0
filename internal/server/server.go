package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/broker"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// SnapshotReader reads a namespace snapshot.
type SnapshotReader interface {
	GetSavedData(ctx context.Context, v models.Version) (models.Snapshot, error)
}

// ProgressSource fans out collection progress.
type ProgressSource interface {
	Subscribe() (<-chan broker.Progress, func())
}

// Options wires a [Server].
type Options struct {
	Snapshots SnapshotReader
	Progress  ProgressSource
	Mux       *transport.Mux
	Gatherer  prometheus.Gatherer // defaults to [prometheus.DefaultGatherer]
	Logger    *log.Logger
}

// Server is the broker's HTTP and websocket front.
type Server struct {
	addr   string
	hub    *Hub
	router *BasicRouter
	logger *log.Logger
}

// New builds the server and its routes.
func New(addr string, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := shared.WithLogger(opts.Logger, "component", "server")
	hub := NewHub(opts.Mux, opts.Progress, logger)

	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))
	router.Handler(hub)
	router.Handler(&apiHandler{snapshots: opts.Snapshots, hub: hub})
	router.Handle(http.MethodGet, "/metrics", metricsHandler(opts.Gatherer))

	return &Server{addr: addr, hub: hub, router: router, logger: logger}
}

// ServerFromConfig builds a server listening on the [server] config address.
func ServerFromConfig(cfg shared.ServerConfig, opts Options) *Server {
	return New(cfg.Address(), opts)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe serves until ctx ends, then shuts down gracefully and closes every websocket peer.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.ListenAndServe] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}
