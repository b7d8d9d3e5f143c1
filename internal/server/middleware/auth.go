package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Principal is the bearer token a request was authenticated with.
type Principal struct {
	Tenant tenant.Context
	Token  *model.Token
}

// HasScope reports whether the principal's token carries scope.
func (p *Principal) HasScope(scope string) bool {
	return p != nil && p.Token != nil && p.Token.HasScope(scope)
}

// TokenValidator resolves a raw bearer value. *service.TokenIssuer
// implements it.
type TokenValidator interface {
	Validate(ctx context.Context, t tenant.Context, raw string) (*model.Token, error)
}

// Authenticate returns an HTTP middleware that requires a valid bearer token
// in the Authorization header. The token is looked up in the request's
// tenant. On success a Principal is attached to the request context; on
// failure a 401 JSON error response is returned.
func Authenticate(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="sluice"`)
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}

			t, _ := tenant.From(r.Context())
			tok, err := v.Validate(r.Context(), t, raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="sluice", error="invalid_token"`)
				if errors.Is(err, service.ErrInvalidToken) {
					writeAuthError(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				writeAuthError(w, http.StatusInternalServerError, "Token validation failed")
				return
			}

			annotate(r.Context(), func(li *logInfo) { li.tokenID = tok.ID })
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, &Principal{Tenant: t, Token: tok})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope returns an HTTP middleware that only admits principals whose
// token carries scope. It must be used after Authenticate in the middleware
// chain.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.HasScope(scope) {
				writeAuthError(w, http.StatusForbidden, "Scope "+scope+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
