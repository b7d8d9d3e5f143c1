package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	scopesURI          = "sluice://scopes"
	connectionTemplate = "sluice://connection/{name}"
	connectionPrefix   = "sluice://connection/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			scopesURI,
			"Scope Catalog",
			mcp.WithResourceDescription("Every scope tokens may be granted, in catalog order."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleScopesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			connectionTemplate,
			"Database Connection",
			mcp.WithTemplateDescription(
				"A stored connection with its configuration. Secret fields are masked.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleConnectionResource,
	)
}

func (s *MCPServer) handleScopesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	scopes, err := s.deps.Directory.ListScopes(ctx, s.tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	return jsonContents(scopesURI, scopes)
}

// handleConnectionResource returns one connection, redacted.
func (s *MCPServer) handleConnectionResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	name := strings.TrimPrefix(uri, connectionPrefix)
	if name == "" || name == uri {
		return nil, fmt.Errorf("invalid connection URI %q: expected %s", uri, connectionTemplate)
	}
	view, err := s.deps.Connections.Describe(ctx, s.tenant, name)
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", name, err)
	}
	return jsonContents(uri, view)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
