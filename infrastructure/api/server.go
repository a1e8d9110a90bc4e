package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apimiddleware "github.com/cavepedia/cavepedia/infrastructure/api/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	addr       string
}

// NewServer creates a new Server with the standard middleware applied.
func NewServer(addr string, logger *slog.Logger) Server {
	if logger == nil {
		logger = slog.Default()
	}

	return Server{
		router: newRouter(logger),
		addr:   addr,
		logger: logger,
	}
}

// newRouter builds a chi router with request ids, correlation ids, request
// logging and panic recovery. No Timeout middleware: the MCP transport streams
// and chi's Timeout wraps the ResponseWriter.
func newRouter(logger *slog.Logger) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(apimiddleware.CorrelationID)
	router.Use(apimiddleware.Logging(logger))
	router.Use(chimiddleware.Recoverer)
	return router
}

// Router returns the chi router for registering routes.
func (s Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s Server) Addr() string {
	return s.addr
}
