// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cavepedia/cavepedia/domain/search"
)

// DefaultToolTimeout bounds one search tool call, remote models included.
const DefaultToolTimeout = 30 * time.Second

// Tool names.
const (
	ToolSearch   = "search_caving_documents"
	ToolPage     = "get_document_page"
	ToolUserInfo = "get_user_info"
)

const instructions = `Cavepedia searches a library of caving documents: trip reports, surveys, newsletters and accident reports.
Call search_caving_documents at most once or twice per question and answer from its results.
When a result is truncated, call get_document_page with its key for the full text.`

// Searcher runs role-scoped retrieval for MCP tools.
type Searcher interface {
	Search(ctx context.Context, request search.Request) (search.Response, error)
	Page(ctx context.Context, key string, roles []string) (search.Result, error)
}

// Server wraps the MCP server with cavepedia tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies. A zero
// timeout uses DefaultToolTimeout.
func NewServer(searcher Searcher, version string, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		searcher: searcher,
		timeout:  timeout,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"cavepedia",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search caving documents (trip reports, surveys, newsletters, accident reports) the caller may read. "+
			"Returns the most relevant pages, ranked, with a note. The results are final; do not repeat the search."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for, in natural language"),
		),
		mcp.WithArray("priority_prefixes",
			mcp.Description("Key prefixes to rank higher, e.g. a folder of accident reports"),
			mcp.WithStringItems(),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	pageTool := mcp.NewTool(ToolPage,
		mcp.WithDescription("Get the full text of one page by the key a search result returned."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("The page key, for example public/va/caves-of-virginia.pdf/page-12.pdf"),
		),
	)
	mcpServer.AddTool(pageTool, s.handleGetPage)

	userTool := mcp.NewTool(ToolUserInfo,
		mcp.WithDescription("List the roles the current caller holds. Documents are visible only to matching roles."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(userTool, s.handleUserInfo)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := search.NewRequest(query, Roles(ctx),
		search.WithPriorityPrefixes(request.GetStringSlice("priority_prefixes", nil)),
		search.WithSourcesOnly(SourcesOnly(ctx)),
	)

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "search failed", slog.String("error", err.Error()))
		resp = search.EmptyResponse(search.NoteUnavailable)
	}

	return jsonResult(resp)
}

func (s *Server) handleGetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("key")
	if err != nil || key == "" {
		return mcp.NewToolResultError("key is required"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.searcher.Page(ctx, key, Roles(ctx))
	if err != nil {
		if !errors.Is(err, search.ErrNotFound) {
			s.logger.WarnContext(ctx, "page lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return jsonResult(map[string]string{"error": "Document not found: " + key})
	}

	return jsonResult(map[string]string{"key": page.Key, "content": page.Content})
}

func (s *Server) handleUserInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roles := Roles(ctx)
	if roles == nil {
		roles = []string{}
	}
	return jsonResult(map[string][]string{"roles": roles})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio. A stdio client has no headers, so
// every call is made as a caller holding roles.
func (s *Server) ServeStdio(roles []string, sourcesOnly bool) error {
	return server.ServeStdio(s.mcpServer, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return WithSourcesOnly(WithRoles(ctx, roles), sourcesOnly)
	}))
}
