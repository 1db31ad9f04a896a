// Package web serves the daemon's read-only status endpoints.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultAddr is the default status server address.
const DefaultAddr = "127.0.0.1:8990"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr   string
	Runs   RunReader
	Logger *log.Logger
}

// Server is the HTTP status server.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new status server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	handlers := NewHandlers(cfg.Runs, cfg.Logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/health", handlers.Health)
	router.Get("/v1/runs", handlers.Runs)

	return &Server{
		router:   router,
		handlers: handlers,
		logger:   cfg.Logger,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
