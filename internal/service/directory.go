package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

// DirectoryStore is the persistence the Directory needs. *config.Store
// implements it.
type DirectoryStore interface {
	AppRepository
	UserRepository
	ScopeRepository

	CreateUser(ctx context.Context, t tenant.Context, u *model.User) error
	ListUsers(ctx context.Context, t tenant.Context) ([]model.User, error)
	SetUserStatus(ctx context.Context, t tenant.Context, id int64, status int) error
	SetUserScopes(ctx context.Context, t tenant.Context, userID int64, names []string) error

	CreateApp(ctx context.Context, t tenant.Context, app *model.App) error
	ListApps(ctx context.Context, t tenant.Context) ([]model.App, error)
	SetAppStatus(ctx context.Context, t tenant.Context, id int64, status int) error
	SetAppScopes(ctx context.Context, t tenant.Context, appID int64, names []string) error

	CreateScope(ctx context.Context, t tenant.Context, scope *model.Scope) error
	ListScopes(ctx context.Context, t tenant.Context) ([]model.Scope, error)
}

// Directory manages users, apps and scopes, enforcing plan quotas on create.
type Directory struct {
	store  DirectoryStore
	hasher *PasswordHasher
	quota  *Quota
}

// NewDirectory creates a directory. quota may be nil.
func NewDirectory(store DirectoryStore, hasher *PasswordHasher, quota *Quota) *Directory {
	return &Directory{store: store, hasher: hasher, quota: quota}
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"password"`
	Scopes   []string `json:"scopes,omitempty"`
}

// CreateUser hashes the password, inserts the user and grants its scopes.
func (d *Directory) CreateUser(ctx context.Context, t tenant.Context, in NewUser) (*model.User, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if err := d.quota.Check(ctx, t, ResourceUsers); err != nil {
		return nil, err
	}
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	u := &model.User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	if err := d.store.CreateUser(ctx, t, u); err != nil {
		return nil, err
	}
	if len(in.Scopes) > 0 {
		if err := d.store.SetUserScopes(ctx, t, u.ID, in.Scopes); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// ListUsers returns the tenant's users.
func (d *Directory) ListUsers(ctx context.Context, t tenant.Context) ([]model.User, error) {
	return d.store.ListUsers(ctx, t)
}

// SetUserActive enables or disables a user.
func (d *Directory) SetUserActive(ctx context.Context, t tenant.Context, id int64, active bool) error {
	status := model.UserStatusDisabled
	if active {
		status = model.UserStatusActive
	}
	return d.store.SetUserStatus(ctx, t, id, status)
}

// GrantUserScopes replaces the scopes granted to a user.
func (d *Directory) GrantUserScopes(ctx context.Context, t tenant.Context, userID int64, names []string) error {
	return d.store.SetUserScopes(ctx, t, userID, names)
}

// UserScopes lists the scopes granted to a user.
func (d *Directory) UserScopes(ctx context.Context, t tenant.Context, userID int64) ([]model.Scope, error) {
	return d.store.ListUserScopes(ctx, t, userID)
}

// NewApp is the input to CreateApp.
type NewApp struct {
	Name   string   `json:"name"`
	URL    string   `json:"url,omitempty"`
	UserID int64    `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
}

// AppCredentials is returned once when an app is created. Secret is never
// stored or shown again.
type AppCredentials struct {
	App    *model.App `json:"app"`
	Key    string     `json:"app_key"`
	Secret string     `json:"app_secret"`
}

// CreateApp registers an app owned by in.UserID with a new key and secret.
func (d *Directory) CreateApp(ctx context.Context, t tenant.Context, in NewApp) (*AppCredentials, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if err := d.quota.Check(ctx, t, ResourceApps); err != nil {
		return nil, err
	}
	secret, err := newAppSecret()
	if err != nil {
		return nil, err
	}
	app := &model.App{
		UserID:     in.UserID,
		Name:       in.Name,
		URL:        in.URL,
		AppKey:     uuid.NewString(),
		SecretHash: config.HashToken(secret),
	}
	if err := d.store.CreateApp(ctx, t, app); err != nil {
		return nil, err
	}
	if len(in.Scopes) > 0 {
		if err := d.store.SetAppScopes(ctx, t, app.ID, in.Scopes); err != nil {
			return nil, err
		}
	}
	return &AppCredentials{App: app, Key: app.AppKey, Secret: secret}, nil
}

func newAppSecret() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate app secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ListApps returns the tenant's apps that are not deleted.
func (d *Directory) ListApps(ctx context.Context, t tenant.Context) ([]model.App, error) {
	return d.store.ListApps(ctx, t)
}

// GetApp returns an app by ID.
func (d *Directory) GetApp(ctx context.Context, t tenant.Context, id int64) (*model.App, error) {
	return d.store.GetApp(ctx, t, id)
}

// SetAppStatus changes an app's status. Only the defined statuses are accepted.
func (d *Directory) SetAppStatus(ctx context.Context, t tenant.Context, id int64, status int) error {
	switch status {
	case model.AppStatusActive, model.AppStatusInactive, model.AppStatusDeleted:
	default:
		return fmt.Errorf("%w: unknown app status %d", ErrInvalidRequest, status)
	}
	return d.store.SetAppStatus(ctx, t, id, status)
}

// AssignAppScopes replaces the scopes assigned to an app.
func (d *Directory) AssignAppScopes(ctx context.Context, t tenant.Context, appID int64, names []string) error {
	return d.store.SetAppScopes(ctx, t, appID, names)
}

// AppScopes lists the scopes assigned to an app.
func (d *Directory) AppScopes(ctx context.Context, t tenant.Context, appID int64) ([]model.Scope, error) {
	return d.store.ListAppScopes(ctx, t, appID)
}

// CreateScope adds a scope to the tenant's catalog.
func (d *Directory) CreateScope(ctx context.Context, t tenant.Context, s model.Scope) (*model.Scope, error) {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" || strings.ContainsAny(s.Name, ", ") {
		return nil, fmt.Errorf("%w: scope name must be non-empty and contain no commas or spaces", ErrInvalidRequest)
	}
	if err := d.quota.Check(ctx, t, ResourceScopes); err != nil {
		return nil, err
	}
	if err := d.store.CreateScope(ctx, t, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListScopes returns the tenant's scope catalog ordered by ID.
func (d *Directory) ListScopes(ctx context.Context, t tenant.Context) ([]model.Scope, error) {
	return d.store.ListScopes(ctx, t)
}
