package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
)

// SystemHandler manages the platform's own records: apps, users, scopes,
// connections and issued tokens. Every route is tenant-scoped.
type SystemHandler struct {
	store  *config.Store
	dir    *service.Directory
	conns  *service.ConnectionService
	issuer *service.TokenIssuer
	logger *slog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store *config.Store, dir *service.Directory, conns *service.ConnectionService, issuer *service.TokenIssuer, logger *slog.Logger) *SystemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemHandler{
		store:  store,
		dir:    dir,
		conns:  conns,
		issuer: issuer,
		logger: logger,
	}
}

// Routes mounts the system endpoints on r.
func (h *SystemHandler) Routes(r chi.Router) {
	r.Get("/app", h.ListApps)
	r.Post("/app", h.CreateApp)
	r.Get("/app/{appId}", h.GetApp)
	r.Delete("/app/{appId}", h.DeleteApp)
	r.Put("/app/{appId}/scope", h.SetAppScopes)

	r.Get("/user", h.ListUsers)
	r.Post("/user", h.CreateUser)
	r.Put("/user/{userId}/scope", h.SetUserScopes)

	r.Get("/scope", h.ListScopes)
	r.Post("/scope", h.CreateScope)

	r.Get("/connection", h.ListConnections)
	r.Post("/connection", h.SaveConnection)
	r.Get("/connection/{name}", h.GetConnection)
	r.Delete("/connection/{name}", h.DeleteConnection)
	r.Post("/connection/{name}/test", h.TestConnection)

	r.Get("/token", h.ListTokens)
	r.Get("/token/{tokenId}", h.GetToken)
	r.Delete("/token/{tokenId}", h.RevokeToken)
}

// ---------------------------------------------------------------------------
// Apps
// ---------------------------------------------------------------------------

// ListApps returns the tenant's apps.
// GET /api/v1/system/app
func (h *SystemHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.dir.ListApps(r.Context(), requestTenant(r))
	if err != nil {
		writeServiceError(w, err, "Failed to list apps")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: apps,
		Meta:     &model.ResponseMeta{Count: len(apps)},
	})
}

// CreateApp registers an app. The response carries the app secret, which is
// not retrievable afterwards.
// POST /api/v1/system/app
func (h *SystemHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req service.NewApp
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	creds, err := h.dir.CreateApp(r.Context(), requestTenant(r), req)
	if err != nil {
		writeServiceError(w, err, "Failed to create app")
		return
	}
	noStore(w)
	writeJSON(w, http.StatusCreated, creds)
}

// GetApp returns a single app by ID.
// GET /api/v1/system/app/{appId}
func (h *SystemHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "appId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid app ID")
		return
	}
	t := requestTenant(r)
	app, err := h.dir.GetApp(r.Context(), t, id)
	if err != nil {
		writeServiceError(w, err, "Failed to get app")
		return
	}
	scopes, err := h.dir.AppScopes(r.Context(), t, id)
	if err != nil {
		writeServiceError(w, err, "Failed to get app scopes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app":    app,
		"scopes": model.ScopeNames(scopes),
	})
}

// DeleteApp marks an app deleted. Its key stops authenticating immediately;
// tokens already issued keep working until they expire or are revoked.
// DELETE /api/v1/system/app/{appId}
func (h *SystemHandler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "appId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid app ID")
		return
	}
	if err := h.dir.SetAppStatus(r.Context(), requestTenant(r), id, model.AppStatusDeleted); err != nil {
		writeServiceError(w, err, "Failed to delete app")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

type scopeListRequest struct {
	Scopes []string `json:"scopes"`
}

// SetAppScopes replaces an app's scope assignment.
// PUT /api/v1/system/app/{appId}/scope
func (h *SystemHandler) SetAppScopes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "appId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid app ID")
		return
	}
	var req scopeListRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.dir.AssignAppScopes(r.Context(), requestTenant(r), id, req.Scopes); err != nil {
		writeServiceError(w, err, "Failed to assign scopes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "scopes": req.Scopes})
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// ListUsers returns the tenant's users.
// GET /api/v1/system/user
func (h *SystemHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.ListUsers(r.Context(), requestTenant(r))
	if err != nil {
		writeServiceError(w, err, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: users,
		Meta:     &model.ResponseMeta{Count: len(users)},
	})
}

// CreateUser creates a user with a password and optional scope grants.
// POST /api/v1/system/user
func (h *SystemHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.NewUser
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	u, err := h.dir.CreateUser(r.Context(), requestTenant(r), req)
	if err != nil {
		writeServiceError(w, err, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// SetUserScopes replaces a user's scope grants.
// PUT /api/v1/system/user/{userId}/scope
func (h *SystemHandler) SetUserScopes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	var req scopeListRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.dir.GrantUserScopes(r.Context(), requestTenant(r), id, req.Scopes); err != nil {
		writeServiceError(w, err, "Failed to grant scopes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "scopes": req.Scopes})
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

// ListScopes returns the tenant's scope catalog.
// GET /api/v1/system/scope
func (h *SystemHandler) ListScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.dir.ListScopes(r.Context(), requestTenant(r))
	if err != nil {
		writeServiceError(w, err, "Failed to list scopes")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: scopes,
		Meta:     &model.ResponseMeta{Count: len(scopes)},
	})
}

// CreateScope adds a scope to the catalog.
// POST /api/v1/system/scope
func (h *SystemHandler) CreateScope(w http.ResponseWriter, r *http.Request) {
	var req model.Scope
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	s, err := h.dir.CreateScope(r.Context(), requestTenant(r), req)
	if err != nil {
		writeServiceError(w, err, "Failed to create scope")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// ListConnections returns the tenant's connections without configurations.
// GET /api/v1/system/connection
func (h *SystemHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.conns.List(r.Context(), requestTenant(r))
	if err != nil {
		writeServiceError(w, err, "Failed to list connections")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: conns,
		Meta:     &model.ResponseMeta{Count: len(conns)},
	})
}

// SaveConnection creates or replaces a connection. The configuration is
// validated against the engine schema and stored encrypted.
// POST /api/v1/system/connection
func (h *SystemHandler) SaveConnection(w http.ResponseWriter, r *http.Request) {
	var req service.ConnectionInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	c, err := h.conns.Save(r.Context(), requestTenant(r), req)
	if err != nil {
		writeServiceError(w, err, "Failed to save connection")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetConnection returns a connection with secret fields masked.
// GET /api/v1/system/connection/{name}
func (h *SystemHandler) GetConnection(w http.ResponseWriter, r *http.Request) {
	view, err := h.conns.Describe(r.Context(), requestTenant(r), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, err, "Failed to get connection")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteConnection removes a connection and closes its pool.
// DELETE /api/v1/system/connection/{name}
func (h *SystemHandler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.conns.Delete(r.Context(), requestTenant(r), name); err != nil {
		writeServiceError(w, err, "Failed to delete connection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "name": name})
}

// TestConnection opens a connection and pings it.
// POST /api/v1/system/connection/{name}/test
func (h *SystemHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.conns.Test(r.Context(), requestTenant(r), name); err != nil {
		h.logger.Warn("connection test failed", "connection", name, "error", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"name":    name,
			"message": "Connection failed: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"name":    name,
		"message": "Connection successful",
	})
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// ListTokens returns issued tokens, newest first, filtered by the app_id,
// user_id, status, scope and ip query parameters.
// GET /api/v1/system/token
func (h *SystemHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	f := model.TokenFilter{
		AppID:  queryInt64Ptr(r, "app_id"),
		UserID: queryInt64Ptr(r, "user_id"),
		Status: queryInt(r, "status", 0),
		Scope:  queryString(r, "scope"),
		IP:     queryString(r, "ip"),
		Limit:  clampInt(queryInt(r, "limit", 16), 1, 1000),
		Offset: clampInt(queryInt(r, "offset", 0), 0, 1<<30),
	}
	if queryBool(r, "active") {
		f.Status = model.TokenStatusActive
	}
	tokens, total, err := h.store.ListTokens(r.Context(), requestTenant(r), f)
	if err != nil {
		writeServiceError(w, err, "Failed to list tokens")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: tokens,
		Meta: &model.ResponseMeta{
			Count:  len(tokens),
			Total:  &total,
			Limit:  f.Limit,
			Offset: f.Offset,
		},
	})
}

// GetToken returns a single token record by ID.
// GET /api/v1/system/token/{tokenId}
func (h *SystemHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "tokenId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid token ID")
		return
	}
	tok, err := h.store.GetToken(r.Context(), requestTenant(r), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get token")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// RevokeToken revokes a token by ID.
// DELETE /api/v1/system/token/{tokenId}
func (h *SystemHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "tokenId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid token ID")
		return
	}
	if err := h.issuer.Revoke(r.Context(), requestTenant(r), id); err != nil {
		writeServiceError(w, err, "Failed to revoke token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}
