package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/server/middleware"
	"github.com/sluicehq/sluice/internal/service"
)

// TokenHandler mints tokens outside the OAuth2 grants: for operators on the
// system API and for authenticated users on the consumer API.
type TokenHandler struct {
	grants *service.GrantService
	store  *config.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(grants *service.GrantService, store *config.Store, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{grants: grants, store: store, now: time.Now, logger: logger}
}

// ConsumerRoutes mounts the consumer token endpoints on r. Requests must
// already be authenticated.
func (h *TokenHandler) ConsumerRoutes(r chi.Router) {
	r.Get("/token", h.ListOwn)
	r.Post("/token", h.CreateOwn)
}

// mintBody is the system mint request.
type mintBody struct {
	AppID  *int64 `json:"app_id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Scope  string `json:"scope"`
	Expire string `json:"expire"`
}

// Mint issues a token for any user of the tenant.
// POST /api/v1/system/token
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var body mintBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	ttl, err := parseExpire(body.Expire, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := h.grants.Mint(r.Context(), service.MintRequest{
		Tenant:     requestTenant(r),
		AppID:      body.AppID,
		UserID:     body.UserID,
		Name:       body.Name,
		Scope:      body.Scope,
		TTL:        ttl,
		RemoteAddr: remoteIP(r),
	})
	if err != nil {
		h.writeMintError(w, r, err)
		return
	}
	noStore(w)
	writeJSON(w, http.StatusCreated, tok.Response())
}

// consumerTokenBody is a personal token request.
type consumerTokenBody struct {
	Name   string   `json:"name"`
	Scope  []string `json:"scope"`
	Expire string   `json:"expire"`
}

// CreateOwn issues a personal token for the authenticated user. Scopes are
// limited to those of the user and of the token making the request.
// POST /consumer/token
func (h *TokenHandler) CreateOwn(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var body consumerTokenBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ttl, err := parseExpire(body.Expire, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := h.grants.Mint(r.Context(), service.MintRequest{
		Tenant:     principal.Tenant,
		UserID:     principal.Token.UserID,
		Name:       strings.TrimSpace(body.Name),
		Scope:      strings.Join(body.Scope, ","),
		Within:     principal.Token.Scopes(),
		TTL:        ttl,
		RemoteAddr: remoteIP(r),
	})
	if err != nil {
		h.writeMintError(w, r, err)
		return
	}
	noStore(w)
	writeJSON(w, http.StatusCreated, tok.Response())
}

// ListOwn returns the authenticated user's tokens, newest first.
// GET /consumer/token
func (h *TokenHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	userID := principal.Token.UserID
	f := model.TokenFilter{
		UserID: &userID,
		Limit:  clampInt(queryInt(r, "limit", 16), 1, 1000),
		Offset: clampInt(queryInt(r, "offset", 0), 0, 1<<30),
	}
	tokens, total, err := h.store.ListTokens(r.Context(), principal.Tenant, f)
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

func (h *TokenHandler) writeMintError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "None of the requested scopes can be granted")
	case errors.Is(err, service.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Token could not be issued, retry later")
	default:
		if !errors.Is(err, config.ErrNotFound) && !errors.Is(err, service.ErrInvalidRequest) {
			h.logger.Error("token mint failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		}
		writeServiceError(w, err, "Failed to issue token")
	}
}

// parseExpire reads an expiry given as an RFC 3339 timestamp or as a
// lifetime understood by config.ParseTTL. Empty means the default lifetime.
func parseExpire(s string, now time.Time) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		d := at.Sub(now.Truncate(time.Second))
		if d <= 0 {
			return 0, errors.New("expire must be in the future")
		}
		return d, nil
	}
	return config.ParseTTLAt(s, now)
}
