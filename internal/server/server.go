// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/appboot/appboot/internal/core/serverbase"
	"github.com/appboot/appboot/internal/issue"
	"github.com/appboot/appboot/pkg/types"
)

const (
	// DefaultHost binds every interface.
	DefaultHost = "0.0.0.0"
	// DefaultPort is the port the image exposes.
	DefaultPort types.ListenPort = 8000

	defaultReadHeaderTimeout = 10 * time.Second
)

// ErrNilHandler is returned by New when no handler is supplied.
var ErrNilHandler = errors.New("handler is nil")

type (
	// Config holds the listener settings.
	Config struct {
		Host              string
		Port              types.ListenPort
		StartupTimeout    time.Duration
		ShutdownTimeout   time.Duration
		ReadHeaderTimeout time.Duration
	}

	// Server serves one handler. It is single-use.
	Server struct {
		*serverbase.Base

		cfg     Config
		handler http.Handler
		logger  *log.Logger

		mu       sync.Mutex
		listener net.Listener
		srv      *http.Server
		addr     string
	}
)

// DefaultConfig returns the listener settings of the image's startup command.
func DefaultConfig() Config {
	return Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		StartupTimeout:    serverbase.DefaultStartupTimeout,
		ShutdownTimeout:   serverbase.DefaultShutdownTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
}

// Address returns the configured host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// New creates a server for handler. Port 0 selects a free port.
func New(cfg Config, handler http.Handler, logger *log.Logger) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := cfg.Port.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	return &Server{
		Base: serverbase.NewBase(
			serverbase.WithStartupTimeout(cfg.StartupTimeout),
			serverbase.WithShutdownTimeout(cfg.ShutdownTimeout),
		),
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start binds the listener and returns once the server accepts connections,
// the startup timeout elapses or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, s.StartupTimeout())
	defer cancel()

	addr := s.cfg.Address()
	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", addr)
	if err != nil {
		err = listenError(addr, err)
		s.TransitionToFailed(err)
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}

	s.mu.Lock()
	s.listener = listener
	s.srv = srv
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.Go(func(context.Context) { s.serve(srv, listener) })

	if err := s.WaitForReady(startupCtx); err != nil {
		_ = listener.Close() // Best-effort cleanup on startup failure
		s.TransitionToFailed(fmt.Errorf("startup: %w", err))
		return s.LastError()
	}

	s.logger.Info("listening", "addr", s.Address())
	return nil
}

func (s *Server) serve(srv *http.Server, listener net.Listener) {
	s.TransitionToRunning()

	err := srv.Serve(listener)
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	s.logger.Error("server failed", "error", err)
	s.TransitionToFailed(fmt.Errorf("serve: %w", err))
}

// Stop drains in-flight requests within the shutdown timeout, then closes
// remaining connections. It is safe to call more than once.
func (s *Server) Stop() error {
	return s.Shutdown(func(ctx context.Context) error {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return nil
		}

		s.logger.Info("shutting down", "timeout", s.ShutdownTimeout())
		err := srv.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			_ = srv.Close() // Force-close connections that outlived the drain window
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return err
	})
}

// Wait blocks until the server stops. It returns the failure when the
// server ended in the Failed state.
func (s *Server) Wait() error {
	<-s.Done()
	if s.State() == serverbase.StateFailed {
		return s.LastError()
	}
	return nil
}

// Address returns the bound host:port, or "" before Start succeeds.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the http URL of the bound address.
func (s *Server) URL() string {
	return "http://" + s.Address()
}

// listenError wraps bind failures with the port-unavailable catalog entry.
func listenError(addr string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("listen").
		WithResource(addr).
		Wrap(err)

	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		ctx.WithKind(issue.PortUnavailableId).
			WithSuggestion("Another process is bound to this port; stop it or choose another port")
	case errors.Is(err, syscall.EACCES):
		ctx.WithKind(issue.PortUnavailableId).
			WithSuggestion("Ports below 1024 need elevated privileges; use a port of 1024 or above")
	}
	return ctx.BuildError()
}
