package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/connector/sqlite"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/secret"
	"github.com/sluicehq/sluice/internal/server/middleware"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

const (
	testAppKey    = "abc"
	testAppSecret = "xyz"
	testUser      = "owner"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *config.Store
	dir      *service.Directory
	issuer   *service.TokenIssuer
	codec    *service.JWTCodec
	registry *connector.Registry
	user     *model.User
	app      *model.App
	router   chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory config store
// seeded with the backend and authorization scopes, one user holding both, and
// app "abc"/"xyz" granted both. Tokens live two days. The system routes are
// mounted without auth middleware for direct handler testing.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	none := tenant.None()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := secret.DeriveKey(bytes.Repeat([]byte{7}, 32), secret.LabelEncryption)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	signing, err := secret.DeriveKey(bytes.Repeat([]byte{7}, 32), secret.LabelSigning)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	registry := connector.NewRegistry()
	registry.Register(sqlite.New())
	t.Cleanup(registry.CloseAll)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := service.NewPasswordHasher(bcrypt.MinCost)
	quota := service.NewQuota(service.StoreLimiter{Counter: store}, service.Limits{service.ResourceApps: 5})
	dir := service.NewDirectory(store, hasher, quota)
	conns := service.NewConnectionService(store, registry, key, quota, logger)
	resolver := service.NewCredentialResolver(store, store, hasher, logger)
	issuer := service.NewTokenIssuer(store, service.WithIssuerLogger(logger))
	grants := service.NewGrantService(resolver, service.NewScopeAuthority(store), issuer,
		service.Lifetimes{Token: 48 * time.Hour, Refresh: 72 * time.Hour}, logger)
	codec := service.NewJWTCodec(signing, "sluice-test")

	for _, name := range []string{"backend", "authorization"} {
		if _, err := dir.CreateScope(ctx, none, model.Scope{Name: name}); err != nil {
			t.Fatalf("CreateScope(%s): %v", name, err)
		}
	}
	user, err := dir.CreateUser(ctx, none, service.NewUser{
		Name:     testUser,
		Password: testPassword,
		Scopes:   []string{"backend", "authorization"},
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	app := &model.App{UserID: user.ID, Name: "client", AppKey: testAppKey, SecretHash: config.HashToken(testAppSecret)}
	if err := store.CreateApp(ctx, none, app); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	if err := store.SetAppScopes(ctx, none, app.ID, []string{"backend", "authorization"}); err != nil {
		t.Fatalf("SetAppScopes: %v", err)
	}

	oauth := NewOAuthHandler(grants, resolver, issuer, codec, logger)
	sys := NewSystemHandler(store, dir, conns, issuer, logger)
	tokens := NewTokenHandler(grants, store, logger)
	spec := NewOpenAPIHandler(dir, registry, "test")

	r := chi.NewRouter()
	r.Use(middleware.Tenant(none, true))
	r.Get("/openapi.json", spec.ServeSpec)
	r.Route("/authorization", func(r chi.Router) {
		r.Post("/token", oauth.Token)
		r.Post("/revoke", oauth.Revoke)
		r.With(middleware.Authenticate(issuer)).Post("/assertion", oauth.Assertion)
	})
	r.Route("/api/v1/system", func(r chi.Router) {
		sys.Routes(r)
		r.Post("/token", tokens.Mint)
	})
	r.Route("/consumer", func(r chi.Router) {
		r.Use(middleware.Authenticate(issuer))
		tokens.ConsumerRoutes(r)
	})

	return &testEnv{
		store:    store,
		dir:      dir,
		issuer:   issuer,
		codec:    codec,
		registry: registry,
		user:     user,
		app:      app,
		router:   r,
	}
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// doForm posts form values, optionally with HTTP Basic client credentials.
func (e *testEnv) doForm(t *testing.T, path string, form url.Values, basic ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if len(basic) == 2 {
		req.SetBasicAuth(basic[0], basic[1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// doAuth executes a request carrying a bearer token.
func (e *testEnv) doAuth(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// issue obtains a client_credentials token for the seeded app.
func (e *testEnv) issue(t *testing.T, scope string) model.TokenResponse {
	t.Helper()
	rr := e.doForm(t, "/authorization/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {testAppKey},
		"client_secret": {testAppSecret},
		"scope":         {scope},
	})
	assertStatus(t, rr, http.StatusOK)
	var tok model.TokenResponse
	decodeJSON(t, rr, &tok)
	return tok
}

func (e *testEnv) tokenCount(t *testing.T) int {
	t.Helper()
	n, err := e.store.Count(context.Background(), tenant.None(), "tokens")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return n
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// recorder serves a prepared request.
func recorder(e *testEnv, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, r)
	return rr
}
