package service

import (
	"context"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

// The repositories below are implemented by *config.Store. Every lookup is
// scoped by the tenant it is given and returns config.ErrNotFound for rows of
// other tenants.

// AppRepository looks up client applications.
type AppRepository interface {
	GetApp(ctx context.Context, t tenant.Context, id int64) (*model.App, error)
	GetActiveAppByKey(ctx context.Context, t tenant.Context, key string) (*model.App, error)
}

// UserRepository looks up users.
type UserRepository interface {
	GetUser(ctx context.Context, t tenant.Context, id int64) (*model.User, error)
	GetUserByName(ctx context.Context, t tenant.Context, name string) (*model.User, error)
}

// ScopeRepository lists scope assignments, ordered by scope ID.
type ScopeRepository interface {
	ListAppScopes(ctx context.Context, t tenant.Context, appID int64) ([]model.Scope, error)
	ListUserScopes(ctx context.Context, t tenant.Context, userID int64) ([]model.Scope, error)
}

// TokenRepository persists issued tokens.
type TokenRepository interface {
	CreateToken(ctx context.Context, t tenant.Context, tok *model.Token) error
	GetToken(ctx context.Context, t tenant.Context, id int64) (*model.Token, error)
	GetTokenByHash(ctx context.Context, t tenant.Context, hash string) (*model.Token, error)
	GetTokenByRefreshHash(ctx context.Context, t tenant.Context, hash string) (*model.Token, error)
	RevokeToken(ctx context.Context, t tenant.Context, id int64) error
	RotateToken(ctx context.Context, t tenant.Context, oldID int64, next *model.Token) error
	ListTokens(ctx context.Context, t tenant.Context, f model.TokenFilter) ([]model.Token, int64, error)
}

// ConnectionRepository persists encrypted connection configurations.
type ConnectionRepository interface {
	CreateConnection(ctx context.Context, t tenant.Context, c *model.Connection) error
	UpdateConnection(ctx context.Context, t tenant.Context, c *model.Connection) error
	GetConnectionByName(ctx context.Context, t tenant.Context, name string) (*model.Connection, error)
	ListConnections(ctx context.Context, t tenant.Context) ([]model.Connection, error)
	DeleteConnection(ctx context.Context, t tenant.Context, name string) error
}

// Counter reports live row counts per resource kind.
type Counter interface {
	Count(ctx context.Context, t tenant.Context, kind string) (int, error)
}
