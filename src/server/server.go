// Package server is the HTTP surface of stoqserver: health, metrics and
// introspection of the bootstrap result. Request scheduling follows the
// concurrency backend selected at startup.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/config"
	"github.com/stoq/stoqserver/src/database"
	"github.com/stoq/stoqserver/src/logging"
)

// shutdownTimeout bounds graceful shutdown after the context is cancelled
var shutdownTimeout = 10 * time.Second

// Deps are the collaborators a Server needs
type Deps struct {
	Config    *config.Config
	Bootstrap bootstrap.Context
	Backend   concurrency.Backend
	// DB is optional; without it /healthz reports the database as disabled
	DB     *database.DB
	Logger *slog.Logger
}

// Server serves the stoqserver HTTP endpoints
type Server struct {
	config    *config.Config
	bc        bootstrap.Context
	backend   concurrency.Backend
	db        *database.DB
	logger    *slog.Logger
	metrics   *Metrics
	startTime time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// New creates a server. A nil Backend is replaced by the one selected by
// the bootstrap substrate.
func New(deps Deps) *Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	backend := deps.Backend
	if backend == nil {
		backend = concurrency.New(deps.Bootstrap.Substrate, cfg.Server.MaxInFlight)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		config:    cfg,
		bc:        deps.Bootstrap,
		backend:   backend,
		db:        deps.DB,
		logger:    logger,
		metrics:   NewMetrics(),
		startTime: time.Now(),
	}
	s.metrics.ObserveBootstrap(deps.Bootstrap)
	if deps.DB != nil {
		s.metrics.ObserveDatabase(deps.DB)
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /api/v1/bootstrap", s.handleBootstrap)
	mux.HandleFunc("GET /api/v1/extensions", s.handleExtensions)
	mux.HandleFunc("GET /api/v1/extensions/{name...}", s.handleExtension)

	return Chain(s.backend.Wrap(mux),
		RequestID,
		ServerHeader,
		Recovery(s.logger),
		AccessLog(s.logger),
		s.metrics.Middleware,
	)
}

// Addr returns the listening address once Serve has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe listens on the configured address and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Address, strconv.Itoa(s.config.Server.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully. The backend bounds accepted connections.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = l.Addr()
	s.mu.Unlock()

	s.logger.Info("listening",
		"addr", l.Addr().String(),
		"backend", s.backend.Kind().String(),
		"runtime", s.bc.Mode.String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(s.backend.Listener(l))
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "cause", context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.backend.Wait()
	<-errCh
	return nil
}
