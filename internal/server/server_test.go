package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/connector/sqlite"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/secret"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testAdminKey    = "admin-app"
	testAdminSecret = "admin-secret"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server *Server
	store  *config.Store
	dir    *service.Directory
	owner  *model.User
}

// newTestEnv creates a fresh test environment with an in-memory config store,
// an owner holding both seeded scopes, an admin app granted both, and a fully
// wired Server. mutate adjusts the server config before New.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	none := tenant.None()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	projectKey := bytes.Repeat([]byte{3}, 32)
	encKey, err := secret.DeriveKey(projectKey, secret.LabelEncryption)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	signKey, err := secret.DeriveKey(projectKey, secret.LabelSigning)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	registry := connector.NewRegistry()
	registry.Register(sqlite.New())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher := service.NewPasswordHasher(bcrypt.MinCost)
	dir := service.NewDirectory(store, hasher, nil)
	resolver := service.NewCredentialResolver(store, store, hasher, logger)
	issuer := service.NewTokenIssuer(store, service.WithIssuerLogger(logger))
	grants := service.NewGrantService(resolver, service.NewScopeAuthority(store), issuer,
		service.Lifetimes{Token: 48 * time.Hour, Refresh: 72 * time.Hour}, logger)

	for _, name := range []string{"backend", "authorization"} {
		if _, err := dir.CreateScope(ctx, none, model.Scope{Name: name}); err != nil {
			t.Fatalf("CreateScope: %v", err)
		}
	}
	owner, err := dir.CreateUser(ctx, none, service.NewUser{
		Name: "owner", Password: "owner-password", Scopes: []string{"backend", "authorization"},
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	app := &model.App{UserID: owner.ID, Name: "admin", AppKey: testAdminKey, SecretHash: config.HashToken(testAdminSecret)}
	if err := store.CreateApp(ctx, none, app); err != nil {
		t.Fatalf("CreateApp: %v", err)
	}
	if err := store.SetAppScopes(ctx, none, app.ID, []string{"backend", "authorization"}); err != nil {
		t.Fatalf("SetAppScopes: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Tenant = none
	for _, m := range mutate {
		m(&cfg)
	}
	srv := New(cfg, Deps{
		Store:       store,
		Registry:    registry,
		Directory:   dir,
		Connections: service.NewConnectionService(store, registry, encKey, nil, logger),
		Grants:      grants,
		Resolver:    resolver,
		Issuer:      issuer,
		Codec:       service.NewJWTCodec(signKey, "sluice"),
	}, logger)
	t.Cleanup(registry.CloseAll)

	return &testEnv{server: srv, store: store, dir: dir, owner: owner}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes a request with a bearer token.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// token runs a client_credentials grant and returns the access token.
func (e *testEnv) token(t *testing.T, key, secret, scope string) string {
	t.Helper()
	form := url.Values{"grant_type": {"client_credentials"}, "scope": {scope}}
	req := httptest.NewRequest("POST", "/authorization/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(key, secret)
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)

	var resp model.TokenResponse
	decodeJSON(t, rr, &resp)
	return resp.AccessToken
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health checks
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("store check = %q", resp.Checks["store"])
	}
	if !strings.HasPrefix(resp.Checks["connections"], "ok") {
		t.Errorf("connections check = %q", resp.Checks["connections"])
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

// ---------------------------------------------------------------------------
// Authentication on the system API
// ---------------------------------------------------------------------------

func TestSystemEndpoints_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/system/app", "/api/v1/system/user", "/api/v1/system/scope", "/api/v1/system/token"} {
		t.Run(path, func(t *testing.T) {
			rr := env.do(t, "GET", path, nil, nil)
			assertStatus(t, rr, http.StatusUnauthorized)
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestSystemEndpoints_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doAuth(t, "GET", "/api/v1/system/app", nil, "not-a-real-token")
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestSystemEndpoints_RequireBackendScope(t *testing.T) {
	env := newTestEnv(t)

	limited := env.token(t, testAdminKey, testAdminSecret, "authorization")
	assertStatus(t, env.doAuth(t, "GET", "/api/v1/system/app", nil, limited), http.StatusForbidden)

	admin := env.token(t, testAdminKey, testAdminSecret, "backend")
	assertStatus(t, env.doAuth(t, "GET", "/api/v1/system/app", nil, admin), http.StatusOK)
}

func TestConsumerEndpoints_AnyAuthenticatedToken(t *testing.T) {
	env := newTestEnv(t)

	assertStatus(t, env.do(t, "GET", "/consumer/token", nil, nil), http.StatusUnauthorized)

	limited := env.token(t, testAdminKey, testAdminSecret, "authorization")
	assertStatus(t, env.doAuth(t, "GET", "/consumer/token", nil, limited), http.StatusOK)
	assertStatus(t, env.doAuth(t, "POST", "/api/v1/system/token", nil, limited), http.StatusForbidden)
}

func TestSystemEndpoints_RevokedToken(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, testAdminKey, testAdminSecret, "backend")

	form := url.Values{"token": {admin}}
	req := httptest.NewRequest("POST", "/authorization/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(testAdminKey, testAdminSecret)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)

	assertStatus(t, env.doAuth(t, "GET", "/api/v1/system/app", nil, admin), http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Tenancy
// ---------------------------------------------------------------------------

func TestTenantHeader_Disabled(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, testAdminKey, testAdminSecret, "backend")

	// The header is ignored, so the token still resolves in the default tenant.
	rr := env.do(t, "GET", "/api/v1/system/scope", nil, map[string]string{
		"Authorization": "Bearer " + admin,
		"X-Tenant-Id":   "acme",
	})
	assertStatus(t, rr, http.StatusOK)
}

func TestTenantHeader_Enabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TenantHeader = true })
	admin := env.token(t, testAdminKey, testAdminSecret, "backend")

	rr := env.do(t, "GET", "/api/v1/system/scope", nil, map[string]string{
		"Authorization": "Bearer " + admin,
		"X-Tenant-Id":   "acme",
	})
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(t, "GET", "/api/v1/system/scope", nil, map[string]string{"X-Tenant-Id": "bad tenant!"})
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Rate limiting and body limits
// ---------------------------------------------------------------------------

func TestTokenEndpoint_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TokenRate = 2 })

	form := url.Values{"grant_type": {"client_credentials"}, "client_id": {testAdminKey}, "client_secret": {"wrong"}}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/authorization/token?client_id="+testAdminKey, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		last = httptest.NewRecorder()
		env.server.ServeHTTP(last, req)
	}
	assertStatus(t, last, http.StatusTooManyRequests)
	if !strings.Contains(last.Body.String(), "slow_down") {
		t.Errorf("body = %s", last.Body.String())
	}
}

func TestSystemEndpoints_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 64 })
	admin := env.token(t, testAdminKey, testAdminSecret, "backend")

	body := jsonBody(t, map[string]string{"name": "s", "description": strings.Repeat("x", 256)})
	rr := env.doAuth(t, "POST", "/api/v1/system/scope", body, admin)
	assertStatus(t, rr, http.StatusBadRequest)
}

// ---------------------------------------------------------------------------
// Documents and CORS
// ---------------------------------------------------------------------------

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	paths, _ := doc["paths"].(map[string]interface{})
	for _, p := range []string{"/authorization/token", "/authorization/revoke", "/api/v1/system/token"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/authorization/token", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Authorization,Content-Type,X-Tenant-Id",
	})
	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/healthz", nil, map[string]string{"X-Request-ID": "trace-123"})
	if got := rr.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}

// ---------------------------------------------------------------------------
// Full workflow: admin token -> create app -> app gets token -> assertion
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, testAdminKey, testAdminSecret, "backend")

	// 1. Create an app limited to the authorization scope.
	rr := env.doAuth(t, "POST", "/api/v1/system/app", jsonBody(t, map[string]interface{}{
		"name":    "reporting",
		"user_id": env.owner.ID,
		"scopes":  []string{"authorization"},
	}), admin)
	assertStatus(t, rr, http.StatusCreated)
	var creds struct {
		AppKey    string `json:"app_key"`
		AppSecret string `json:"app_secret"`
	}
	decodeJSON(t, rr, &creds)

	// 2. The app cannot obtain the backend scope.
	form := url.Values{"scope": {"backend"}}
	req := httptest.NewRequest("POST", "/authorization/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(creds.AppKey, creds.AppSecret)
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusBadRequest)

	// 3. It can obtain its own scope and exchange it for an assertion.
	tok := env.token(t, creds.AppKey, creds.AppSecret, "")
	rr = env.doAuth(t, "POST", "/authorization/assertion", nil, tok)
	assertStatus(t, rr, http.StatusOK)

	// 4. The token shows up in the admin listing with the caller's address.
	rr = env.doAuth(t, "GET", "/api/v1/system/token?scope=authorization", nil, admin)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		Resource []model.Token      `json:"resource"`
		Meta     model.ResponseMeta `json:"meta"`
	}
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 1 {
		t.Fatalf("tokens = %d, want 1", len(list.Resource))
	}
	if list.Resource[0].IP != "192.0.2.1" {
		t.Errorf("ip = %q, want 192.0.2.1", list.Resource[0].IP)
	}

	// 5. Revoke it through the system API.
	rr = env.doAuth(t, "DELETE", fmt.Sprintf("/api/v1/system/token/%d", list.Resource[0].ID), nil, admin)
	assertStatus(t, rr, http.StatusOK)
	assertStatus(t, env.doAuth(t, "POST", "/authorization/assertion", nil, tok), http.StatusUnauthorized)
}
