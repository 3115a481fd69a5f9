// ABOUTME: Server orchestrator that wires store, auth, credential broker and SSH trust
// ABOUTME: Manages the loopback HTTP listener, optional tailnet listener and shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/ocm/internal/auth"
	"github.com/2389/ocm/internal/config"
	"github.com/2389/ocm/internal/credential"
	"github.com/2389/ocm/internal/sshtrust"
	"github.com/2389/ocm/internal/store"
)

// Server is the ocm dashboard backend.
type Server struct {
	config   *config.Config
	store    store.Store
	tokens   *auth.TokenAuthority
	broker   *credential.Broker
	trust    *sshtrust.Manager
	sessions *auth.SessionIssuer // nil when askpass.jwt_secret is unset
	handler  http.Handler
	logger   *slog.Logger

	httpServer   *http.Server
	tsHTTPServer *http.Server
	tsnetServer  *tsnet.Server
}

// New opens the configured SQLite store and builds a Server on it.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	srv, err := NewWithStore(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return srv, nil
}

// NewWithStore builds a Server on an already-open store. The server takes
// ownership of st and closes it on Shutdown.
func NewWithStore(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var sessions *auth.SessionIssuer
	if cfg.Askpass.JWTSecret != "" {
		var err error
		sessions, err = auth.NewSessionIssuer([]byte(cfg.Askpass.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating askpass session issuer: %w", err)
		}
	}

	broker := credential.NewBroker(st, st, credential.Options{
		CacheTTL: cfg.Credentials.CacheTTL,
		Logger:   logger,
	})
	trust := sshtrust.NewManager(st, sshtrust.Options{
		Timeout: cfg.SSH.HostKeyTimeout,
		Logger:  logger,
	})

	s := &Server{
		config:   cfg,
		store:    st,
		tokens:   auth.NewTokenAuthority(st, logger),
		broker:   broker,
		trust:    trust,
		sessions: sessions,
		logger:   logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var gate func(http.Handler) http.Handler
	if cfg.Auth.Disabled {
		s.logger.Warn("API authentication is DISABLED - every /api request is accepted")
		gate = auth.NoAuthMiddleware()
	} else {
		gate = auth.HTTPAuthMiddleware(s.tokens, auth.MiddlewareOptions{
			PublicPaths:    cfg.Auth.PublicPaths,
			PublicPrefixes: cfg.Auth.PublicPrefixes,
			Logger:         logger,
		})
	}
	s.handler = recoveryMiddleware(s.logger, loggingMiddleware(s.logger, gate(mux)))

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Tokens exposes the token authority for CLI subcommands.
func (s *Server) Tokens() *auth.TokenAuthority { return s.tokens }

// Bootstrap creates the first API token on an empty install. It returns
// "" when tokens already exist.
func (s *Server) Bootstrap(ctx context.Context) (string, error) {
	tok, err := s.tokens.BootstrapFirstToken(ctx)
	if err != nil {
		return "", fmt.Errorf("bootstrapping api token: %w", err)
	}
	if tok != "" {
		s.logger.Info("created bootstrap api token")
	}
	return tok, nil
}

// startServers starts the HTTP servers in goroutines, returning error channel.
func (s *Server) startServers(httpLn, tsLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if tsLn != nil {
		go func() {
			s.logger.Info("tailnet HTTP server listening", "addr", tsLn.Addr().String())
			if err := s.tsHTTPServer.Serve(tsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tailnet HTTP server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the listeners and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		if shutdownErr := s.gracefulShutdown(); shutdownErr != nil {
			s.logger.Warn("cleanup after listen failure", "error", shutdownErr)
		}
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	var tsLn net.Listener
	if s.config.Tailscale.Enabled {
		tsLn, err = s.setupTailscaleListener(ctx)
		if err != nil {
			_ = httpLn.Close()
			if shutdownErr := s.gracefulShutdown(); shutdownErr != nil {
				s.logger.Warn("cleanup after tailscale failure", "error", shutdownErr)
			}
			return err
		}
		s.tsHTTPServer = &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	errCh := s.startServers(httpLn, tsLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, rejects pending host-key requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// release handlers blocked on operator decisions before draining connections
	s.trust.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsHTTPServer != nil {
		errs = appendCloseError(errs, "tailnet HTTP shutdown", s.tsHTTPServer.Shutdown(ctx))
	}
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}

	s.broker.Close()
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
