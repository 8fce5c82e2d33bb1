// Package server constructs and starts the chat relay with helpers that apply
// sensible production defaults.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/catalog"
)

// Server bundles the hub, the HTTP routes, and the listener for one relay
// process.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	hub      *Hub
	catalog  *catalog.Catalog
	origins  originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a Server from cfg. A nil cfg uses defaults and a nil catalog
// uses the built-in room list.
func New(cfg *Config, cat *catalog.Catalog, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.sanitized()

	s := &Server{
		cfg:     c,
		logger:  logger,
		hub:     NewHub(c, logger),
		catalog: cat,
		origins: newOriginPolicy(c.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.http = CreateServer(c.Port, s.Routes())
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// StartHub starts the hub's run loop in a separate goroutine. It must be
// called before the server accepts connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.logger.Info("hub started and ready to manage websocket connections")
}

// ListenAndServe starts the HTTP listener and blocks until it stops. A
// graceful shutdown is not reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then closes every WebSocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		s.logger.Warn("http server shutdown", "error", httpErr)
	}

	hubErr := s.hub.Shutdown(ctx)
	return errors.Join(httpErr, hubErr)
}
