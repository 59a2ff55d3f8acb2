// Package echo implements the WebSocket echo service: every message a client
// sends is answered with a fixed prefix followed by the message.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/libp2p/go-reuseport"

	"github.com/opensesame/sesametools/internal/domain"
	"github.com/opensesame/sesametools/internal/ports"
)

const (
	// DefaultPrefix is prepended to every echoed message.
	DefaultPrefix = "Server received: "

	// DefaultMaxMessageBytes caps the size of a single incoming message.
	DefaultMaxMessageBytes = 1 << 20

	readHeaderTimeout = 10 * time.Second
)

// Config holds the echo server configuration.
type Config struct {
	Host            string
	Port            int
	Prefix          string
	MaxMessageBytes int64
	ReusePort       bool
	ShutdownTimeout time.Duration
}

// Addr returns the host:port the server binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server accepts WebSocket connections and echoes their messages.
type Server struct {
	cfg       Config
	logger    ports.Logger
	lifecycle *Lifecycle

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a server. Call Listen, then Serve.
func NewServer(cfg Config, logger ports.Logger) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		lifecycle: NewLifecycle(logger, nil),
	}
}

// Lifecycle exposes the server state machine.
func (s *Server) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// Listen binds the configured address. A bind failure is logged with a
// stack trace and returned wrapping domain.ErrBind.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), domain.ErrAlreadyRunning)
	}

	ln, err := listen(s.cfg)
	if err != nil {
		s.logger.Error("server startup error",
			ports.String("addr", s.cfg.Addr()),
			ports.Err(err),
			ports.String("stack", string(debug.Stack())),
		)
		return fmt.Errorf("%w: %s: %w", domain.ErrBind, s.cfg.Addr(), err)
	}
	s.ln = ln

	s.logger.Info("websocket server started",
		ports.String("addr", ln.Addr().String()),
		ports.Bool("reuse_port", s.cfg.ReusePort),
	)
	return nil
}

func listen(cfg Config) (net.Listener, error) {
	if cfg.ReusePort {
		return reuseport.Listen("tcp", cfg.Addr())
	}
	return net.Listen("tcp", cfg.Addr())
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Handler returns the HTTP handler that upgrades requests on any path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

// ListenAndServe binds and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections on the bound listener until ctx is cancelled.
// Shutdown stops accepting, cancels every connection and waits up to
// ShutdownTimeout for handlers to return.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("serve: listener not bound: %w", domain.ErrNotRunning)
	}

	if err := s.lifecycle.TransitionTo(StateStarting, "serve"); err != nil {
		return err
	}

	// Connection contexts outlive ctx so shutdown can close them in order.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	s.lifecycle.SetCancel(cancel)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return connCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	if err := s.lifecycle.TransitionTo(StateRunning, "accepting connections"); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.lifecycle.Cancel()
		s.clearListener()
		if terr := s.lifecycle.TransitionTo(StateCrashed, err.Error()); terr != nil {
			s.logger.Warn("lifecycle transition", ports.Err(terr))
		}
		return fmt.Errorf("serve: %w", err)
	}

	if err := s.lifecycle.TransitionTo(StateStopping, "context cancelled"); err != nil {
		return err
	}
	s.logger.Info("shutting down",
		ports.Int("active", s.lifecycle.ActiveWorkers()),
	)

	shutdownCtx, stop := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("http shutdown", ports.Err(err))
	}
	s.clearListener()

	s.lifecycle.Cancel()
	waitErr := s.lifecycle.WaitWithTimeout(s.cfg.ShutdownTimeout)

	if err := s.lifecycle.TransitionTo(StateStopped, "shutdown complete"); err != nil {
		return err
	}
	s.logger.Info("websocket server stopped")
	return waitErr
}

// Close releases a listener that was bound but is not being served.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil || s.lifecycle.State() != StateStopped {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

func (s *Server) clearListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ln = nil
}
