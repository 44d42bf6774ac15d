package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/pkg/logger"
)

// Server wraps http.Server with lifecycle management.
type Server struct {
	server *http.Server
	cfg    config.ServerConfig
	logger *logger.Logger
}

// NewServer creates a new Server.
func NewServer(cfg config.ServerConfig, h http.Handler, log *logger.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      h,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		cfg:    cfg,
		logger: log.With("component", "http_server"),
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}
