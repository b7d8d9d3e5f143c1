package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

// constReader yields the same byte forever.
type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

// countingTokens counts insert attempts.
type countingTokens struct {
	TokenRepository
	mu      sync.Mutex
	creates int
}

func (c *countingTokens) CreateToken(ctx context.Context, t tenant.Context, tok *model.Token) error {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.TokenRepository.CreateToken(ctx, t, tok)
}

// conflictingTokens fails every insert as a hash collision.
type conflictingTokens struct {
	TokenRepository
	rotations int
}

func (c *conflictingTokens) CreateToken(context.Context, tenant.Context, *model.Token) error {
	return config.ErrConflict
}

func (c *conflictingTokens) RotateToken(context.Context, tenant.Context, int64, *model.Token) error {
	c.rotations++
	return config.ErrConflict
}

func generateRequest(f *fixture, ttl time.Duration) GenerateRequest {
	appID := f.app.ID
	return GenerateRequest{
		Tenant:     tenant.None(),
		AppID:      &appID,
		UserID:     f.user.ID,
		Scopes:     []string{"backend"},
		RemoteAddr: "192.0.2.10",
		TTL:        ttl,
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.issuer.Generate(ctx, generateRequest(f, 90*time.Second))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tok.ExpiresIn != 90 {
		t.Errorf("ExpiresIn = %d, want 90", tok.ExpiresIn)
	}
	for name, v := range map[string]string{"access": tok.Token, "refresh": tok.RefreshToken} {
		raw, err := base64.RawURLEncoding.DecodeString(v)
		if err != nil {
			t.Fatalf("%s value is not base64url: %v", name, err)
		}
		if len(raw)*8 < 256 {
			t.Errorf("%s value has %d bits, want at least 256", name, len(raw)*8)
		}
	}
	if tok.Token == tok.RefreshToken {
		t.Error("access and refresh values must differ")
	}

	row, err := f.store.GetToken(ctx, tenant.None(), tok.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if row.IP != "192.0.2.10" {
		t.Errorf("IP = %q, want 192.0.2.10", row.IP)
	}
	if row.Scope != "backend" {
		t.Errorf("Scope = %q, want backend", row.Scope)
	}
	if row.TokenHash == tok.Token {
		t.Error("raw access value must not be stored")
	}
	if !row.RefreshExpiresAt.After(row.IssuedAt) || row.RefreshExpiresAt.Before(row.ExpiresAt) {
		t.Errorf("refresh expiry %v must not precede access expiry %v", row.RefreshExpiresAt, row.ExpiresAt)
	}
}

func TestGenerateRejectsEmptyScopes(t *testing.T) {
	f := newFixture(t)
	req := generateRequest(f, time.Hour)
	req.Scopes = nil
	if _, err := f.issuer.Generate(context.Background(), req); !errors.Is(err, ErrInvalidScope) {
		t.Errorf("err = %v, want ErrInvalidScope", err)
	}
	if n := f.tokenCount(t); n != 0 {
		t.Errorf("%d tokens stored, want 0", n)
	}
}

func TestGenerateRejectsNonPositiveTTL(t *testing.T) {
	f := newFixture(t)
	if _, err := f.issuer.Generate(context.Background(), generateRequest(f, 0)); err == nil {
		t.Error("expected error for zero lifetime")
	}
}

func TestGenerateRetriesCollisionsThenGivesUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := &countingTokens{TokenRepository: f.store}
	issuer := NewTokenIssuer(repo, WithRandom(constReader(7)), WithIssuerLogger(discardLogger()))

	if _, err := issuer.Generate(ctx, generateRequest(f, time.Hour)); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	repo.creates = 0

	_, err := issuer.Generate(ctx, generateRequest(f, time.Hour))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
	if repo.creates != maxGenerateAttempts {
		t.Errorf("insert attempts = %d, want %d", repo.creates, maxGenerateAttempts)
	}
	if n := f.tokenCount(t); n != 1 {
		t.Errorf("%d tokens stored, want 1", n)
	}
}

func TestGenerateConcurrentValuesAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 40
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values = make(map[string]bool, 2*n)
		errs   []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			values[tok.Token] = true
			values[tok.RefreshToken] = true
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("Generate failed: %v", errs[0])
	}
	if len(values) != 2*n {
		t.Errorf("got %d distinct values, want %d", len(values), 2*n)
	}
	if c := f.tokenCount(t); c != n {
		t.Errorf("%d tokens stored, want %d", c, n)
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	f := newFixture(t, WithClock(clock))
	ctx := context.Background()

	tok, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	row, err := f.issuer.Validate(ctx, tenant.None(), tok.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if row.ID != tok.ID {
		t.Errorf("ID = %d, want %d", row.ID, tok.ID)
	}

	if _, err := f.issuer.Validate(ctx, tenant.None(), tok.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh value as bearer: err = %v, want ErrInvalidToken", err)
	}
	if _, err := f.issuer.Validate(ctx, tenant.None(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty value: err = %v, want ErrInvalidToken", err)
	}
	if _, err := f.issuer.Validate(ctx, tenant.MustNew("acme"), tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("other tenant: err = %v, want ErrInvalidToken", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := f.issuer.Validate(ctx, tenant.None(), tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v, want ErrInvalidToken", err)
	}
}

func TestRevokeValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, useRefresh := range []bool{false, true} {
		tok, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		value := tok.Token
		if useRefresh {
			value = tok.RefreshToken
		}
		if err := f.issuer.RevokeValue(ctx, tenant.None(), value); err != nil {
			t.Fatalf("RevokeValue: %v", err)
		}
		if _, err := f.issuer.Validate(ctx, tenant.None(), tok.Token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("after revoke (refresh=%v): err = %v, want ErrInvalidToken", useRefresh, err)
		}
	}

	if err := f.issuer.RevokeValue(ctx, tenant.None(), "never-issued"); err != nil {
		t.Errorf("unknown value: err = %v, want nil", err)
	}
}

func TestRevokeValueFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	otherApp := f.app.ID + 1
	for name, owner := range map[string]Credentials{
		"other app":  {AppID: &otherApp, UserID: f.user.ID},
		"owner user": {UserID: f.user.ID},
	} {
		if err := f.issuer.RevokeValueFor(ctx, tenant.None(), tok.RefreshToken, owner); err != nil {
			t.Fatalf("%s: RevokeValueFor: %v", name, err)
		}
		if _, err := f.issuer.Validate(ctx, tenant.None(), tok.Token); err != nil {
			t.Errorf("%s revoked a token it does not own: %v", name, err)
		}
	}

	appID := f.app.ID
	if err := f.issuer.RevokeValueFor(ctx, tenant.None(), tok.Token, Credentials{AppID: &appID, UserID: f.user.ID}); err != nil {
		t.Fatalf("RevokeValueFor: %v", err)
	}
	if _, err := f.issuer.Validate(ctx, tenant.None(), tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("after owner revoke: err = %v, want ErrInvalidToken", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	second, err := f.issuer.Refresh(ctx, tenant.None(), f.app.ID, first.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.Token == first.Token {
		t.Error("refresh must mint a new access value")
	}
	if _, err := f.issuer.Validate(ctx, tenant.None(), first.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("old token still valid: err = %v", err)
	}

	_, err = f.issuer.Refresh(ctx, tenant.None(), f.app.ID, first.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour)
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("reused refresh: err = %v, want ErrInvalidGrant", err)
	}

	_, err = f.issuer.Refresh(ctx, tenant.None(), f.app.ID+1, second.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour)
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("other app: err = %v, want ErrInvalidGrant", err)
	}

	if _, err := f.issuer.Refresh(ctx, tenant.None(), f.app.ID, "", "", time.Hour, time.Hour); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty refresh: err = %v, want ErrInvalidRequest", err)
	}
}

func TestRefreshFailureKeepsOldToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.issuer.Generate(ctx, generateRequest(f, time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	repo := &conflictingTokens{TokenRepository: f.store}
	broken := NewTokenIssuer(repo, WithIssuerLogger(discardLogger()))
	_, err = broken.Refresh(ctx, tenant.None(), f.app.ID, first.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
	if repo.rotations != maxGenerateAttempts {
		t.Errorf("rotation attempts = %d, want %d", repo.rotations, maxGenerateAttempts)
	}

	if _, err := f.issuer.Validate(ctx, tenant.None(), first.Token); err != nil {
		t.Errorf("old access token rejected after failed refresh: %v", err)
	}
	if _, err := f.issuer.Refresh(ctx, tenant.None(), f.app.ID, first.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour); err != nil {
		t.Errorf("refresh after failed attempt: %v", err)
	}
}

func TestRefreshCollisionRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issuer := NewTokenIssuer(f.store, WithRandom(constReader(9)), WithIssuerLogger(discardLogger()))

	first, err := issuer.Generate(ctx, generateRequest(f, time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// A constant entropy source regenerates the stored values every time.
	_, err = issuer.Refresh(ctx, tenant.None(), f.app.ID, first.RefreshToken, "198.51.100.1", time.Hour, 2*time.Hour)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
	tok, err := f.store.GetToken(ctx, tenant.None(), first.ID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Status != model.TokenStatusActive {
		t.Errorf("old token status = %d, want active", tok.Status)
	}
	if n := f.tokenCount(t); n != 1 {
		t.Errorf("%d tokens stored, want 1", n)
	}
}

func TestAccessTokenResponse(t *testing.T) {
	tok := &AccessToken{Token: "a", RefreshToken: "r", ExpiresIn: 60, Scopes: []string{"backend", "authorization"}}
	resp := tok.Response()
	if resp.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want bearer", resp.TokenType)
	}
	if resp.Scope != "backend,authorization" {
		t.Errorf("Scope = %q, want backend,authorization", resp.Scope)
	}
}
