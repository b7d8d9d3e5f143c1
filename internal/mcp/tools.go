package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
)

// registerTools registers all administration tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Catalog tools -----

	srv.AddTool(
		mcp.NewTool("sluice_list_scopes",
			mcp.WithDescription(
				"List the scope catalog in catalog order. Tokens are granted a subset "+
					"of these scopes; the order here is the order granted scopes are reported in.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListScopes,
	)

	srv.AddTool(
		mcp.NewTool("sluice_create_scope",
			mcp.WithDescription("Add a scope to the catalog. Names may not contain commas or spaces."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Scope name"),
			),
			mcp.WithString("description",
				mcp.Description("Human-readable description"),
			),
		),
		s.handleCreateScope,
	)

	srv.AddTool(
		mcp.NewTool("sluice_list_apps",
			mcp.WithDescription(
				"List client apps with their keys, owners and scopes. Secrets are never returned.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListApps,
	)

	// ----- Token tools -----

	srv.AddTool(
		mcp.NewTool("sluice_list_tokens",
			mcp.WithDescription(
				"List issued tokens, newest first. Records carry scopes, expiry and the "+
					"originating address, never the token values themselves.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("app_id",
				mcp.Description("Only tokens issued to this app"),
			),
			mcp.WithNumber("user_id",
				mcp.Description("Only tokens issued for this user"),
			),
			mcp.WithString("scope",
				mcp.Description("Only tokens whose scope list contains this text"),
			),
			mcp.WithBoolean("active",
				mcp.Description("Only tokens that have not been revoked"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of records to return (default 16, max 1000)"),
			),
		),
		s.handleListTokens,
	)

	srv.AddTool(
		mcp.NewTool("sluice_introspect_token",
			mcp.WithDescription(
				"Check whether a raw access token is currently valid and return its record. "+
					"Unknown, revoked and expired tokens all report active=false.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("token",
				mcp.Required(),
				mcp.Description("Raw access token value"),
			),
		),
		s.handleIntrospectToken,
	)

	srv.AddTool(
		mcp.NewTool("sluice_revoke_token",
			mcp.WithDescription(
				"Revoke a token by record ID or by raw access/refresh value. Revocation "+
					"takes effect on the next request that presents the token.",
			),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithNumber("id",
				mcp.Description("Token record ID"),
			),
			mcp.WithString("token",
				mcp.Description("Raw access or refresh token value"),
			),
		),
		s.handleRevokeToken,
	)

	// ----- Connection tools -----

	srv.AddTool(
		mcp.NewTool("sluice_list_connections",
			mcp.WithDescription("List database connections by name and engine. Configurations are not included."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListConnections,
	)

	srv.AddTool(
		mcp.NewTool("sluice_test_connection",
			mcp.WithDescription("Open a stored connection and ping it."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Connection name"),
			),
		),
		s.handleTestConnection,
	)
}

// ---------------------------------------------------------------------------
// Catalog handlers
// ---------------------------------------------------------------------------

func (s *MCPServer) handleListScopes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopes, err := s.deps.Directory.ListScopes(ctx, s.tenant)
	if err != nil {
		return toolError("failed to list scopes: %v", err)
	}
	return successJSON(scopes)
}

func (s *MCPServer) handleCreateScope(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requireString(request, "name")
	if err != nil {
		return toolError("%v", err)
	}
	scope, err := s.deps.Directory.CreateScope(ctx, s.tenant, model.Scope{
		Name:        name,
		Description: request.GetString("description", ""),
	})
	if err != nil {
		if errors.Is(err, config.ErrConflict) {
			return toolError("scope %q already exists", name)
		}
		return toolError("failed to create scope: %v", err)
	}
	s.logger.Info("scope created via MCP", "tenant", s.tenant.String(), "scope", name)
	return successJSON(scope)
}

func (s *MCPServer) handleListApps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apps, err := s.deps.Directory.ListApps(ctx, s.tenant)
	if err != nil {
		return toolError("failed to list apps: %v", err)
	}

	type appInfo struct {
		ID     int64    `json:"id"`
		Name   string   `json:"name"`
		Key    string   `json:"app_key"`
		UserID int64    `json:"user_id"`
		Status int      `json:"status"`
		Scopes []string `json:"scopes"`
	}
	items := make([]appInfo, 0, len(apps))
	for _, a := range apps {
		scopes, err := s.deps.Directory.AppScopes(ctx, s.tenant, a.ID)
		if err != nil {
			return toolError("failed to load scopes for app %d: %v", a.ID, err)
		}
		items = append(items, appInfo{
			ID:     a.ID,
			Name:   a.Name,
			Key:    a.AppKey,
			UserID: a.UserID,
			Status: a.Status,
			Scopes: model.ScopeNames(scopes),
		})
	}
	return successJSON(items)
}

// ---------------------------------------------------------------------------
// Token handlers
// ---------------------------------------------------------------------------

func (s *MCPServer) handleListTokens(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := model.TokenFilter{
		AppID:  optionalInt64(request, "app_id"),
		UserID: optionalInt64(request, "user_id"),
		Scope:  request.GetString("scope", ""),
		Limit:  clamp(request.GetInt("limit", 16), 1, 1000),
	}
	if request.GetBool("active", false) {
		f.Status = model.TokenStatusActive
	}
	tokens, total, err := s.deps.Store.ListTokens(ctx, s.tenant, f)
	if err != nil {
		return toolError("failed to list tokens: %v", err)
	}
	return successJSON(map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
		"total":  total,
	})
}

// introspection mirrors the shape of an OAuth2 introspection response.
type introspection struct {
	Active    bool         `json:"active"`
	Scope     string       `json:"scope,omitempty"`
	ExpiresIn int          `json:"expires_in,omitempty"`
	Token     *model.Token `json:"token,omitempty"`
}

func (s *MCPServer) handleIntrospectToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := requireString(request, "token")
	if err != nil {
		return toolError("%v", err)
	}
	tok, err := s.deps.Issuer.Validate(ctx, s.tenant, raw)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return successJSON(introspection{Active: false})
		}
		return toolError("failed to validate token: %v", err)
	}
	return successJSON(introspection{
		Active:    true,
		Scope:     tok.Scope,
		ExpiresIn: int(time.Until(tok.ExpiresAt).Seconds()),
		Token:     tok,
	})
}

func (s *MCPServer) handleRevokeToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := optionalInt64(request, "id")
	raw := request.GetString("token", "")
	switch {
	case id != nil && raw != "":
		return toolError("pass either id or token, not both")
	case id != nil:
		if err := s.deps.Issuer.Revoke(ctx, s.tenant, *id); err != nil {
			if errors.Is(err, config.ErrNotFound) {
				return toolError("token %d not found", *id)
			}
			return toolError("failed to revoke token: %v", err)
		}
	case raw != "":
		if err := s.deps.Issuer.RevokeValue(ctx, s.tenant, raw); err != nil {
			return toolError("failed to revoke token: %v", err)
		}
	default:
		return toolError("one of id or token is required")
	}
	s.logger.Info("token revoked via MCP", "tenant", s.tenant.String())
	return successJSON(map[string]interface{}{"revoked": true})
}

// ---------------------------------------------------------------------------
// Connection handlers
// ---------------------------------------------------------------------------

func (s *MCPServer) handleListConnections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.deps.Connections.List(ctx, s.tenant)
	if err != nil {
		return toolError("failed to list connections: %v", err)
	}
	return successJSON(conns)
}

func (s *MCPServer) handleTestConnection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requireString(request, "name")
	if err != nil {
		return toolError("%v", err)
	}
	if err := s.deps.Connections.Test(ctx, s.tenant, name); err != nil {
		return toolError("connection %q failed: %v", name, err)
	}
	return successJSON(map[string]interface{}{"name": name, "success": true})
}
