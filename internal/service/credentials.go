package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

// Credentials identifies who authenticated: an app acting for its owner, or a
// user directly (AppID nil).
type Credentials struct {
	AppID  *int64
	UserID int64
}

// Owns reports whether tok was issued to these credentials: to the same app,
// or to the same user when no app is involved.
func (c Credentials) Owns(tok *model.Token) bool {
	if c.AppID != nil {
		return tok.AppID != nil && *tok.AppID == *c.AppID
	}
	return tok.AppID == nil && tok.UserID == c.UserID
}

// CredentialResolver turns an identifier and secret into Credentials. An
// identifier is first tried as an app key and then as a user name. Every
// authentication failure yields ErrInvalidClient.
type CredentialResolver struct {
	apps   AppRepository
	users  UserRepository
	hasher *PasswordHasher
	logger *slog.Logger
}

// NewCredentialResolver creates a resolver.
func NewCredentialResolver(apps AppRepository, users UserRepository, hasher *PasswordHasher, logger *slog.Logger) *CredentialResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialResolver{apps: apps, users: users, hasher: hasher, logger: logger}
}

// Resolve authenticates identifier/secret in tenant t.
func (r *CredentialResolver) Resolve(ctx context.Context, identifier, secret string, t tenant.Context) (*Credentials, error) {
	if identifier == "" || secret == "" {
		return nil, ErrInvalidClient
	}

	creds, err := r.resolveApp(ctx, identifier, secret, t)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, ErrInvalidClient) {
		return nil, err
	}

	userID, err := r.ResolveUser(ctx, identifier, secret, t)
	if err != nil {
		return nil, err
	}
	return &Credentials{UserID: userID}, nil
}

// Lookup returns Credentials for an existing active user and, when appID is
// set, an existing active app, without authenticating either. It backs tokens
// minted by operators and by already authenticated users.
func (r *CredentialResolver) Lookup(ctx context.Context, t tenant.Context, appID *int64, userID int64) (*Credentials, error) {
	user, err := r.users.GetUser(ctx, t, userID)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("%w: user %d is not active", ErrInvalidRequest, userID)
	}
	if appID == nil {
		return &Credentials{UserID: user.ID}, nil
	}
	app, err := r.apps.GetApp(ctx, t, *appID)
	if err != nil {
		return nil, fmt.Errorf("app %d: %w", *appID, err)
	}
	if !app.IsActive() {
		return nil, fmt.Errorf("%w: app %d is not active", ErrInvalidRequest, *appID)
	}
	id := app.ID
	return &Credentials{AppID: &id, UserID: user.ID}, nil
}

// ResolveApp authenticates an app only. Used by grants that require client
// authentication separately from the resource owner.
func (r *CredentialResolver) ResolveApp(ctx context.Context, key, secret string, t tenant.Context) (*Credentials, error) {
	if key == "" || secret == "" {
		return nil, ErrInvalidClient
	}
	return r.resolveApp(ctx, key, secret, t)
}

func (r *CredentialResolver) resolveApp(ctx context.Context, key, secret string, t tenant.Context) (*Credentials, error) {
	app, err := r.apps.GetActiveAppByKey(ctx, t, key)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("resolve app: %w", err)
	}
	presented := config.HashToken(secret)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(app.SecretHash)) != 1 {
		return nil, ErrInvalidClient
	}
	appID := app.ID
	return &Credentials{AppID: &appID, UserID: app.UserID}, nil
}

// ResolveUser authenticates an active user by name and password and returns
// its ID. Unknown users still cost one bcrypt comparison.
func (r *CredentialResolver) ResolveUser(ctx context.Context, name, password string, t tenant.Context) (int64, error) {
	if name == "" || password == "" {
		return 0, ErrInvalidClient
	}
	user, err := r.users.GetUserByName(ctx, t, name)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			r.hasher.CompareDummy(password)
			return 0, ErrInvalidClient
		}
		return 0, fmt.Errorf("resolve user: %w", err)
	}
	// Always compare so inactive accounts take as long as active ones.
	ok := r.hasher.Compare(user.PasswordHash, password)
	if !ok || !user.IsActive() {
		r.logger.Debug("user authentication failed", "tenant", t.String(), "user_id", user.ID, "active", user.IsActive())
		return 0, ErrInvalidClient
	}
	return user.ID, nil
}
