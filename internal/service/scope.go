package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sluicehq/sluice/internal/tenant"
)

// ScopeAuthority computes the scopes a token may carry.
type ScopeAuthority struct {
	scopes ScopeRepository
}

// NewScopeAuthority creates an authority backed by repo.
func NewScopeAuthority(repo ScopeRepository) *ScopeAuthority {
	return &ScopeAuthority{scopes: repo}
}

// Authorize intersects the requested scopes with the user's scopes and, when
// appID is set, the app's scopes. An empty request asks for all of the user's
// scopes. The result is deduplicated and ordered by scope ID; an empty result
// is ErrInvalidScope.
func (a *ScopeAuthority) Authorize(ctx context.Context, requested string, appID *int64, userID int64, t tenant.Context) ([]string, error) {
	userScopes, err := a.scopes.ListUserScopes(ctx, t, userID)
	if err != nil {
		return nil, fmt.Errorf("user scopes: %w", err)
	}

	want := SplitScopes(requested)
	var wantSet map[string]bool
	if len(want) > 0 {
		wantSet = make(map[string]bool, len(want))
		for _, s := range want {
			wantSet[s] = true
		}
	}

	var appSet map[string]bool
	if appID != nil {
		appScopes, err := a.scopes.ListAppScopes(ctx, t, *appID)
		if err != nil {
			return nil, fmt.Errorf("app scopes: %w", err)
		}
		appSet = make(map[string]bool, len(appScopes))
		for _, s := range appScopes {
			appSet[s.Name] = true
		}
	}

	seen := make(map[string]bool, len(userScopes))
	result := make([]string, 0, len(userScopes))
	for _, s := range userScopes {
		if seen[s.Name] {
			continue
		}
		if wantSet != nil && !wantSet[s.Name] {
			continue
		}
		if appSet != nil && !appSet[s.Name] {
			continue
		}
		seen[s.Name] = true
		result = append(result, s.Name)
	}

	if len(result) == 0 {
		return nil, ErrInvalidScope
	}
	return result, nil
}

// SplitScopes splits a comma-separated scope list, trimming blanks. Spaces
// are accepted as separators too.
func SplitScopes(csv string) []string {
	fields := strings.FieldsFunc(csv, func(r rune) bool { return r == ',' || r == ' ' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
