package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/server/middleware"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

// AdminScope is the scope a bearer token needs on the HTTP transport.
const AdminScope = "backend"

// HTTPPath is where the HTTP transport is mounted.
const HTTPPath = "/mcp"

// Deps are the services the MCP tools operate on.
type Deps struct {
	Store       *config.Store
	Directory   *service.Directory
	Connections *service.ConnectionService
	Issuer      *service.TokenIssuer
}

// MCPServer wraps the mcp-go server with the platform's administration tools
// and resources. Every call operates on one tenant, fixed at construction.
type MCPServer struct {
	deps   Deps
	tenant tenant.Context
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(deps Deps, t tenant.Context, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		deps:   deps,
		tenant: t,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Sluice Authorization",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch the
// server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode", "tenant", s.tenant.String())
	return server.ServeStdio(s.server)
}

// HTTPHandler returns the streamable HTTP transport behind bearer
// authentication. Requests need a token of the server's tenant carrying
// AdminScope.
func (s *MCPServer) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Tenant(s.tenant, false))
	r.Use(middleware.Authenticate(s.deps.Issuer))
	r.Use(middleware.RequireScope(AdminScope))
	r.Handle(HTTPPath, server.NewStreamableHTTPServer(s.server))
	return r
}

// ListenAndServe serves HTTPHandler on addr until ctx is done, then shuts
// down gracefully.
func (s *MCPServer) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP HTTP server starting", "addr", addr, "path", HTTPPath, "tenant", s.tenant.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func destructiveAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
