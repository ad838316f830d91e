// Package server wraps the HTTP listener with sane timeouts and
// graceful shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"automation-engine/internal/common/logging"
)

// Server represents the engine's HTTP server
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// New creates a new server instance
func New(handler http.Handler, port string, logger logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", logging.Field{Key: "addr", Value: s.srv.Addr})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server stopped", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
