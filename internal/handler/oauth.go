package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/server/middleware"
	"github.com/sluicehq/sluice/internal/service"
)

// maxGrantBody bounds token, revoke and assertion request bodies.
const maxGrantBody = 64 << 10

// OAuthHandler serves the /authorization endpoints: the token grant,
// revocation and signed assertions.
type OAuthHandler struct {
	grants   *service.GrantService
	resolver *service.CredentialResolver
	issuer   *service.TokenIssuer
	codec    *service.JWTCodec
	logger   *slog.Logger
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(grants *service.GrantService, resolver *service.CredentialResolver, issuer *service.TokenIssuer, codec *service.JWTCodec, logger *slog.Logger) *OAuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthHandler{
		grants:   grants,
		resolver: resolver,
		issuer:   issuer,
		codec:    codec,
		logger:   logger,
	}
}

// grantParams are the token request parameters, from a form or JSON body.
type grantParams struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Token        string `json:"token"`
}

// readGrantParams reads parameters from a form or JSON body. Client
// credentials in an HTTP Basic header take precedence over body fields.
func readGrantParams(r *http.Request) (grantParams, error) {
	var p grantParams
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := readJSON(r, &p); err != nil {
			return p, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return p, err
		}
		p = grantParams{
			GrantType:    r.Form.Get("grant_type"),
			ClientID:     r.Form.Get("client_id"),
			ClientSecret: r.Form.Get("client_secret"),
			Username:     r.Form.Get("username"),
			Password:     r.Form.Get("password"),
			RefreshToken: r.Form.Get("refresh_token"),
			Scope:        r.Form.Get("scope"),
			Token:        r.Form.Get("token"),
		}
	}

	if id, secret, ok := r.BasicAuth(); ok {
		// Basic credentials are form-urlencoded before base64.
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		p.ClientID, p.ClientSecret = id, secret
	}
	return p, nil
}

// Token issues an access token.
// POST /authorization/token
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxGrantBody)
	p, err := readGrantParams(r)
	if err != nil {
		writeOAuthError(w, service.ErrInvalidRequest, "malformed request body")
		return
	}

	grantType, err := service.ParseGrantType(p.GrantType)
	if err != nil {
		writeOAuthError(w, err, "")
		return
	}

	tok, err := h.grants.Grant(r.Context(), service.GrantRequest{
		Type:         grantType,
		Tenant:       requestTenant(r),
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Username:     p.Username,
		Password:     p.Password,
		RefreshToken: p.RefreshToken,
		Scope:        p.Scope,
		RemoteAddr:   remoteIP(r),
	})
	if err != nil {
		if oauthCode(err) == "server_error" {
			h.logger.Error("token grant failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		}
		writeOAuthError(w, err, "")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, tok.Response())
}

// Revoke revokes an access or refresh token issued to the authenticating
// client. Unknown tokens and tokens of other clients are not an error.
// POST /authorization/revoke
func (h *OAuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxGrantBody)
	p, err := readGrantParams(r)
	if err != nil {
		writeOAuthError(w, service.ErrInvalidRequest, "malformed request body")
		return
	}
	t := requestTenant(r)
	creds, err := h.resolver.Resolve(r.Context(), p.ClientID, p.ClientSecret, t)
	if err != nil {
		writeOAuthError(w, err, "")
		return
	}
	if p.Token == "" {
		writeOAuthError(w, service.ErrInvalidRequest, "token is required")
		return
	}
	if err := h.issuer.RevokeValueFor(r.Context(), t, p.Token, *creds); err != nil {
		h.logger.Error("token revocation failed", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		writeOAuthError(w, err, "")
		return
	}
	noStore(w)
	w.WriteHeader(http.StatusOK)
}

// assertionResponse is returned by Assertion.
type assertionResponse struct {
	Assertion string `json:"assertion"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// Assertion exchanges the authenticated bearer token for a short-lived
// signed assertion that downstream services can verify offline.
// POST /authorization/assertion
func (h *OAuthHandler) Assertion(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeOAuthError(w, service.ErrInvalidClient, "bearer token required")
		return
	}
	s, err := h.codec.Assert(principal.Token, principal.Tenant.ID(), service.AssertionTTL)
	if err != nil {
		h.logger.Error("assertion signing failed", "error", err)
		writeOAuthError(w, err, "")
		return
	}
	claims, err := h.codec.Decode(s)
	if err != nil {
		writeOAuthError(w, err, "")
		return
	}
	noStore(w)
	writeJSON(w, http.StatusOK, assertionResponse{
		Assertion: s,
		TokenType: "urn:ietf:params:oauth:token-type:jwt",
		ExpiresIn: int(claims.ExpiresAt.Sub(claims.IssuedAt.Time).Seconds()),
	})
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// oauthCode maps a grant error to its OAuth2 error code.
func oauthCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		return "invalid_client"
	case errors.Is(err, service.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, service.ErrInvalidGrant):
		return "invalid_grant"
	case errors.Is(err, service.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, service.ErrUnsupportedGrantType):
		return "unsupported_grant_type"
	case errors.Is(err, service.ErrServiceUnavailable):
		return "temporarily_unavailable"
	default:
		return "server_error"
	}
}

var oauthStatus = map[string]int{
	"invalid_client":          http.StatusUnauthorized,
	"invalid_scope":           http.StatusBadRequest,
	"invalid_grant":           http.StatusBadRequest,
	"invalid_request":         http.StatusBadRequest,
	"unsupported_grant_type":  http.StatusBadRequest,
	"temporarily_unavailable": http.StatusServiceUnavailable,
	"server_error":            http.StatusInternalServerError,
}

// writeOAuthError writes an RFC 6749 error body. The description defaults to
// the sentinel's message; internal errors are never described.
func writeOAuthError(w http.ResponseWriter, err error, description string) {
	code := oauthCode(err)
	if description == "" && code != "server_error" {
		description = firstLine(err)
	}
	if code == "invalid_client" {
		w.Header().Set("WWW-Authenticate", `Basic realm="sluice"`)
	}
	noStore(w)
	writeJSON(w, oauthStatus[code], model.OAuthError{Error: code, ErrorDescription: description})
}

// firstLine returns the outermost sentinel text of err, dropping wrapped
// detail after the first colon.
func firstLine(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[:i]
	}
	return msg
}
