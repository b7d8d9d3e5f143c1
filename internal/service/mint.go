package service

import (
	"context"
	"time"

	"github.com/sluicehq/sluice/internal/tenant"
)

// MintRequest asks for a token outside the OAuth2 grants. Scope is a
// comma-separated request narrowed like a grant; an empty Scope asks for
// everything the user and app share. Within, when set, caps the result to
// the scopes of the caller's own token. A zero TTL uses the configured
// lifetime.
type MintRequest struct {
	Tenant     tenant.Context
	AppID      *int64
	UserID     int64
	Name       string
	Scope      string
	Within     []string
	TTL        time.Duration
	RemoteAddr string
}

// Mint issues a token for an existing user, optionally through one of the
// tenant's apps, without authenticating either. Operators use it from the
// CLI and the system API; authenticated users use it for personal tokens.
func (s *GrantService) Mint(ctx context.Context, req MintRequest) (*AccessToken, error) {
	if req.TTL < 0 {
		return nil, ErrInvalidRequest
	}
	creds, err := s.resolver.Lookup(ctx, req.Tenant, req.AppID, req.UserID)
	if err != nil {
		return nil, err
	}
	scopes, err := s.authority.Authorize(ctx, req.Scope, creds.AppID, creds.UserID, req.Tenant)
	if err != nil {
		return nil, err
	}
	if req.Within != nil {
		scopes = intersect(scopes, req.Within)
		if len(scopes) == 0 {
			return nil, ErrInvalidScope
		}
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = s.lifetimes.Token
	}
	tok, err := s.issuer.Generate(ctx, GenerateRequest{
		Tenant:     req.Tenant,
		AppID:      creds.AppID,
		UserID:     creds.UserID,
		Name:       req.Name,
		Scopes:     scopes,
		RemoteAddr: req.RemoteAddr,
		TTL:        ttl,
		RefreshTTL: s.lifetimes.Refresh,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("token minted",
		"tenant", req.Tenant.String(),
		"token_id", tok.ID,
		"user_id", creds.UserID,
		"name", req.Name,
	)
	return tok, nil
}

// intersect keeps the entries of have that appear in allowed, in order.
func intersect(have, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	out := make([]string, 0, len(have))
	for _, s := range have {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
