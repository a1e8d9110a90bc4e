// Package api serves the search tool surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"

	mcpinternal "github.com/cavepedia/cavepedia/internal/mcp"
)

// APIServer exposes health checks and the MCP endpoint.
type APIServer struct {
	searcher    mcpinternal.Searcher
	version     string
	corsOrigins []string
	toolTimeout time.Duration
	server      *Server
	router      chi.Router
	logger      *slog.Logger
}

// Option configures an APIServer.
type Option func(*APIServer)

// WithVersion sets the version reported to MCP clients.
func WithVersion(version string) Option {
	return func(a *APIServer) { a.version = version }
}

// WithCORSOrigins allows browser callers from origins. None disables CORS.
func WithCORSOrigins(origins []string) Option {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// WithToolTimeout bounds each MCP tool call.
func WithToolTimeout(d time.Duration) Option {
	return func(a *APIServer) { a.toolTimeout = d }
}

// NewAPIServer creates an APIServer answering tool calls with searcher.
func NewAPIServer(searcher mcpinternal.Searcher, logger *slog.Logger, opts ...Option) *APIServer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &APIServer{
		searcher:    searcher,
		toolTimeout: mcpinternal.DefaultToolTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// mountRoutes wires health checks and MCP onto router.
func (a *APIServer) mountRoutes(router chi.Router) {
	if len(a.corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{
				"Accept", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version",
				mcpinternal.HeaderUserRoles, mcpinternal.HeaderSourcesOnly,
			},
			ExposedHeaders: []string{"Mcp-Session-Id"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", health)
	router.Get("/healthz", health)

	// Identity headers are read on every request, so a session started by
	// one caller never answers with another caller's roles.
	mcpSrv := mcpinternal.NewServer(a.searcher, a.version, a.toolTimeout, a.logger)
	httpHandler := server.NewStreamableHTTPServer(mcpSrv.MCPServer(),
		server.WithHTTPContextFunc(mcpinternal.HTTPContext),
	)
	router.Mount("/mcp", httpHandler)
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.router = newRouter(a.logger)
		a.mountRoutes(a.router)
	}
	return a.router
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	srv := NewServer(addr, a.logger)
	a.server = &srv
	a.mountRoutes(srv.Router())
	return srv.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
