package service

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/tenant"
)

// Resource is a metered resource kind.
type Resource string

const (
	ResourceApps        Resource = "apps"
	ResourceUsers       Resource = "users"
	ResourceScopes      Resource = "scopes"
	ResourceConnections Resource = "connections"
	ResourceTokens      Resource = "tokens"
)

// Limiter reports how many of a resource a tenant currently has.
type Limiter interface {
	Count(ctx context.Context, t tenant.Context, r Resource) (int, error)
}

// StoreLimiter adapts a row Counter to the Limiter interface.
type StoreLimiter struct {
	Counter Counter
}

func (l StoreLimiter) Count(ctx context.Context, t tenant.Context, r Resource) (int, error) {
	return l.Counter.Count(ctx, t, string(r))
}

// Limits are per-tenant plan limits. A missing or zero entry is unlimited.
type Limits map[Resource]int

// Quota enforces Limits before resources are created.
type Quota struct {
	limiter Limiter
	limits  Limits
}

// NewQuota creates a quota. A nil *Quota allows everything.
func NewQuota(l Limiter, limits Limits) *Quota {
	return &Quota{limiter: l, limits: limits}
}

// Check returns ErrQuotaExceeded when creating one more r would exceed the
// tenant's limit.
func (q *Quota) Check(ctx context.Context, t tenant.Context, r Resource) error {
	if q == nil {
		return nil
	}
	limit := q.limits[r]
	if limit <= 0 {
		return nil
	}
	n, err := q.limiter.Count(ctx, t, r)
	if err != nil {
		return fmt.Errorf("quota %s: %w", r, err)
	}
	if n >= limit {
		return fmt.Errorf("%w: %s limit is %d", ErrQuotaExceeded, r, limit)
	}
	return nil
}
