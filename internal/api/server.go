// Package api exposes the engine over HTTP: the webhook ingress endpoint,
// lead ingestion, recovery read models, routing rule management, and
// dead-letter inspection and replay.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// Server wraps the HTTP listener around the route tree.
type Server struct {
	cfg    config.ServerConfig
	server *http.Server
}

func NewServer(cfg config.ServerConfig, h *Handlers) *Server {
	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      SetupRoutes(h),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	logger.Info("http server listening", "addr", s.server.Addr, "environment", s.cfg.Environment)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
