package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

const (
	// tokenBytes is the entropy of access and refresh values.
	tokenBytes = 32
	// maxGenerateAttempts bounds retries after a uniqueness collision.
	maxGenerateAttempts = 3
)

// TokenType is the only token type issued.
const TokenType = "bearer"

// GenerateRequest describes one token to mint. RemoteAddr is the originating
// address of the grant request and is recorded with the token.
type GenerateRequest struct {
	Tenant     tenant.Context
	AppID      *int64
	UserID     int64
	Name       string
	Scopes     []string
	RemoteAddr string
	TTL        time.Duration
	RefreshTTL time.Duration
}

// AccessToken is a freshly minted token. Token and RefreshToken are the raw
// values; they are never persisted.
type AccessToken struct {
	ID           int64
	Token        string
	RefreshToken string
	ExpiresIn    int
	ExpiresAt    time.Time
	Scopes       []string
}

// Response renders the token as a grant response body.
func (a *AccessToken) Response() model.TokenResponse {
	return model.TokenResponse{
		AccessToken:  a.Token,
		TokenType:    TokenType,
		ExpiresIn:    a.ExpiresIn,
		RefreshToken: a.RefreshToken,
		Scope:        strings.Join(a.Scopes, ","),
	}
}

// TokenIssuer mints, validates and revokes opaque bearer tokens.
type TokenIssuer struct {
	tokens TokenRepository
	rand   io.Reader
	now    func() time.Time
	logger *slog.Logger
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithRandom replaces the entropy source.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *TokenIssuer) { i.rand = r }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) { i.now = now }
}

// WithIssuerLogger sets the logger.
func WithIssuerLogger(l *slog.Logger) IssuerOption {
	return func(i *TokenIssuer) { i.logger = l }
}

// NewTokenIssuer creates an issuer persisting to repo.
func NewTokenIssuer(repo TokenRepository, opts ...IssuerOption) *TokenIssuer {
	i := &TokenIssuer{
		tokens: repo,
		rand:   rand.Reader,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generate mints and persists one token. A collision on the stored hashes is
// retried with fresh values up to maxGenerateAttempts times, after which
// ErrServiceUnavailable is returned. Nothing is written on failure.
func (i *TokenIssuer) Generate(ctx context.Context, req GenerateRequest) (*AccessToken, error) {
	return i.mint(ctx, req, func(row *model.Token) error {
		if err := i.tokens.CreateToken(ctx, req.Tenant, row); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
		return nil
	})
}

// mint builds rows with fresh values and hands each to persist until one is
// stored without a collision.
func (i *TokenIssuer) mint(ctx context.Context, req GenerateRequest, persist func(*model.Token) error) (*AccessToken, error) {
	if len(req.Scopes) == 0 {
		return nil, ErrInvalidScope
	}
	if req.TTL <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %v", req.TTL)
	}
	refreshTTL := req.RefreshTTL
	if refreshTTL < req.TTL {
		refreshTTL = req.TTL
	}

	now := i.now().UTC()
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		access, err := i.randomValue()
		if err != nil {
			return nil, err
		}
		refresh, err := i.randomValue()
		if err != nil {
			return nil, err
		}

		row := &model.Token{
			AppID:            req.AppID,
			UserID:           req.UserID,
			Name:             req.Name,
			Status:           model.TokenStatusActive,
			Scope:            strings.Join(req.Scopes, ","),
			TokenHash:        config.HashToken(access),
			RefreshHash:      config.HashToken(refresh),
			IP:               req.RemoteAddr,
			IssuedAt:         now,
			ExpiresAt:        now.Add(req.TTL),
			RefreshExpiresAt: now.Add(refreshTTL),
		}
		err = persist(row)
		if errors.Is(err, config.ErrConflict) {
			i.logger.Warn("token collision, regenerating", "tenant", req.Tenant.String(), "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		return &AccessToken{
			ID:           row.ID,
			Token:        access,
			RefreshToken: refresh,
			ExpiresIn:    int(req.TTL.Seconds()),
			ExpiresAt:    row.ExpiresAt,
			Scopes:       req.Scopes,
		}, nil
	}
	return nil, ErrServiceUnavailable
}

func (i *TokenIssuer) randomValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.rand, b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Validate looks up a raw bearer value. Unknown, revoked and expired tokens
// all return ErrInvalidToken; expiry is checked here rather than swept.
func (i *TokenIssuer) Validate(ctx context.Context, t tenant.Context, raw string) (*model.Token, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	tok, err := i.tokens.GetTokenByHash(ctx, t, config.HashToken(raw))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if !tok.IsUsable(i.now()) {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

// Revoke marks a token revoked by ID.
func (i *TokenIssuer) Revoke(ctx context.Context, t tenant.Context, id int64) error {
	return i.tokens.RevokeToken(ctx, t, id)
}

// RevokeValue revokes the token whose access or refresh value is raw. Unknown
// values are ignored.
func (i *TokenIssuer) RevokeValue(ctx context.Context, t tenant.Context, raw string) error {
	tok, err := i.lookupValue(ctx, t, raw)
	if err != nil || tok == nil {
		return err
	}
	return i.tokens.RevokeToken(ctx, t, tok.ID)
}

// RevokeValueFor is RevokeValue on behalf of a client. Tokens the client does
// not own are left alone and reported like unknown values, so the response
// does not reveal whether another client's token exists.
func (i *TokenIssuer) RevokeValueFor(ctx context.Context, t tenant.Context, raw string, owner Credentials) error {
	tok, err := i.lookupValue(ctx, t, raw)
	if err != nil || tok == nil {
		return err
	}
	if !owner.Owns(tok) {
		i.logger.Warn("revocation of foreign token ignored", "tenant", t.String(), "token_id", tok.ID, "user_id", owner.UserID)
		return nil
	}
	return i.tokens.RevokeToken(ctx, t, tok.ID)
}

// lookupValue finds a token by access or refresh value; nil if unknown.
func (i *TokenIssuer) lookupValue(ctx context.Context, t tenant.Context, raw string) (*model.Token, error) {
	hash := config.HashToken(raw)
	tok, err := i.tokens.GetTokenByHash(ctx, t, hash)
	if errors.Is(err, config.ErrNotFound) {
		tok, err = i.tokens.GetTokenByRefreshHash(ctx, t, hash)
	}
	if errors.Is(err, config.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoke token: %w", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh value for a new token with the same scopes. The
// refresh value must belong to clientAppID, be unexpired, and not have been
// used. The old token is consumed in the same transaction that stores the new
// one, so a failed refresh leaves the old token usable.
func (i *TokenIssuer) Refresh(ctx context.Context, t tenant.Context, clientAppID int64, rawRefresh, remoteAddr string, ttl, refreshTTL time.Duration) (*AccessToken, error) {
	if rawRefresh == "" {
		return nil, ErrInvalidRequest
	}
	old, err := i.tokens.GetTokenByRefreshHash(ctx, t, config.HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if old.AppID == nil || *old.AppID != clientAppID {
		return nil, ErrInvalidGrant
	}
	if old.Status != model.TokenStatusActive || !i.now().Before(old.RefreshExpiresAt) {
		return nil, ErrInvalidGrant
	}

	req := GenerateRequest{
		Tenant:     t,
		AppID:      old.AppID,
		UserID:     old.UserID,
		Name:       old.Name,
		Scopes:     old.Scopes(),
		RemoteAddr: remoteAddr,
		TTL:        ttl,
		RefreshTTL: refreshTTL,
	}
	tok, err := i.mint(ctx, req, func(row *model.Token) error {
		if err := i.tokens.RotateToken(ctx, t, old.ID, row); err != nil {
			return fmt.Errorf("rotate refresh token: %w", err)
		}
		return nil
	})
	if errors.Is(err, config.ErrNotFound) {
		// Consumed by a concurrent refresh.
		return nil, ErrInvalidGrant
	}
	return tok, err
}
