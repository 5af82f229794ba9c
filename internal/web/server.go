// Package web provides the HTTP server for the shousai dashboard: a
// JSON API over the coordinator plus a websocket push channel for live
// status updates.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roasbeef/shousai/internal/coordinator"
)

// Config holds configuration for the web server.
type Config struct {
	// Addr is the listen address.
	Addr string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: ":8080",
	}
}

// Server is the HTTP server for the shousai dashboard.
type Server struct {
	cfg   *Config
	log   *slog.Logger
	coord *coordinator.Coordinator
	hub   *Hub
	mux   *http.ServeMux
	srv   *http.Server
}

// NewServer creates a web server over the given coordinator.
func NewServer(cfg *Config, coord *coordinator.Coordinator,
	log *slog.Logger) (*Server, error) {

	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:   cfg,
		log:   log.With("component", "web"),
		coord: coord,
		mux:   http.NewServeMux(),
	}

	s.registerAPIV1Routes()

	s.hub = NewHub(coord, s.log)
	go s.hub.Run()

	s.mux.HandleFunc("/ws", s.handleWebSocket)

	// Everything else is the embedded dashboard.
	frontendHandler, err := FrontendHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to create frontend handler: %w",
			err)
	}
	s.mux.Handle("/", frontendHandler)

	return s, nil
}

// Start starts the HTTP server. It blocks until the listener fails or
// the server is shut down.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting web server", "addr", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Stop()
	}

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// Handler returns the server's root handler, used by tests to drive the
// API without a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}
