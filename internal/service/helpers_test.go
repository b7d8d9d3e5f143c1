package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

const ownerPassword = "correct-horse-battery"

// fixture is a store seeded with one user owning one app. The user holds the
// backend and authorization scopes; so does the app, whose key is "abc" and
// secret "xyz".
type fixture struct {
	store    *config.Store
	hasher   *PasswordHasher
	resolver *CredentialResolver
	auth     *ScopeAuthority
	issuer   *TokenIssuer
	grants   *GrantService
	user     *model.User
	app      *model.App
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	s, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newFixture(t *testing.T, opts ...IssuerOption) *fixture {
	t.Helper()
	ctx := context.Background()
	none := tenant.None()
	store := newTestStore(t)
	hasher := NewPasswordHasher(bcrypt.MinCost)

	for _, name := range []string{"backend", "authorization"} {
		if err := store.CreateScope(ctx, none, &model.Scope{Name: name}); err != nil {
			t.Fatalf("CreateScope(%s): %v", name, err)
		}
	}

	hash, err := hasher.Hash(ownerPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	user := &model.User{Name: "owner", PasswordHash: hash}
	if err := store.CreateUser(ctx, none, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.SetUserScopes(ctx, none, user.ID, []string{"backend", "authorization"}); err != nil {
		t.Fatalf("SetUserScopes: %v", err)
	}

	app := &model.App{UserID: user.ID, Name: "client", AppKey: "abc", SecretHash: config.HashToken("xyz")}
	if err := store.CreateApp(ctx, none, app); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	if err := store.SetAppScopes(ctx, none, app.ID, []string{"backend", "authorization"}); err != nil {
		t.Fatalf("SetAppScopes: %v", err)
	}

	logger := discardLogger()
	opts = append([]IssuerOption{WithIssuerLogger(logger)}, opts...)
	resolver := NewCredentialResolver(store, store, hasher, logger)
	auth := NewScopeAuthority(store)
	issuer := NewTokenIssuer(store, opts...)
	grants := NewGrantService(resolver, auth, issuer, Lifetimes{Token: time.Hour, Refresh: 2 * time.Hour}, logger)

	return &fixture{
		store:    store,
		hasher:   hasher,
		resolver: resolver,
		auth:     auth,
		issuer:   issuer,
		grants:   grants,
		user:     user,
		app:      app,
	}
}

func (f *fixture) tokenCount(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), tenant.None(), "tokens")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}
