package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sluicehq/sluice/internal/tenant"
)

// GrantType selects how a token request is authenticated.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
)

// ParseGrantType maps a grant_type parameter to a GrantType. An empty value is
// client_credentials.
func ParseGrantType(s string) (GrantType, error) {
	switch GrantType(s) {
	case "", GrantClientCredentials:
		return GrantClientCredentials, nil
	case GrantPassword:
		return GrantPassword, nil
	case GrantRefreshToken:
		return GrantRefreshToken, nil
	}
	return "", ErrUnsupportedGrantType
}

// GrantRequest is one token request. RemoteAddr is the address the request
// arrived from; it is recorded on the issued token.
type GrantRequest struct {
	Type         GrantType
	Tenant       tenant.Context
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	Scope        string
	RemoteAddr   string
}

// Lifetimes are the access and refresh token lifetimes.
type Lifetimes struct {
	Token   time.Duration
	Refresh time.Duration
}

type grantFunc func(ctx context.Context, req GrantRequest) (*AccessToken, error)

// GrantService dispatches token requests to their grant handler.
type GrantService struct {
	resolver  *CredentialResolver
	authority *ScopeAuthority
	issuer    *TokenIssuer
	lifetimes Lifetimes
	logger    *slog.Logger
	grants    map[GrantType]grantFunc
}

// NewGrantService wires a grant service.
func NewGrantService(resolver *CredentialResolver, authority *ScopeAuthority, issuer *TokenIssuer, lifetimes Lifetimes, logger *slog.Logger) *GrantService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GrantService{
		resolver:  resolver,
		authority: authority,
		issuer:    issuer,
		lifetimes: lifetimes,
		logger:    logger,
	}
	s.grants = map[GrantType]grantFunc{
		GrantClientCredentials: s.clientCredentials,
		GrantPassword:          s.password,
		GrantRefreshToken:      s.refresh,
	}
	return s
}

// Lifetimes returns the configured token lifetimes.
func (s *GrantService) Lifetimes() Lifetimes { return s.lifetimes }

// Grant authenticates req and issues a token.
func (s *GrantService) Grant(ctx context.Context, req GrantRequest) (*AccessToken, error) {
	fn, ok := s.grants[req.Type]
	if !ok {
		return nil, ErrUnsupportedGrantType
	}
	tok, err := fn(ctx, req)
	if err != nil {
		if isGrantRejection(err) {
			s.logger.Warn("grant rejected",
				"grant_type", string(req.Type),
				"tenant", req.Tenant.String(),
				"client_id", req.ClientID,
				"remote_addr", req.RemoteAddr,
				"error", err,
			)
		}
		return nil, err
	}
	s.logger.Info("token issued",
		"grant_type", string(req.Type),
		"tenant", req.Tenant.String(),
		"token_id", tok.ID,
		"remote_addr", req.RemoteAddr,
	)
	return tok, nil
}

func (s *GrantService) clientCredentials(ctx context.Context, req GrantRequest) (*AccessToken, error) {
	creds, err := s.resolver.Resolve(ctx, req.ClientID, req.ClientSecret, req.Tenant)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, req, creds)
}

func (s *GrantService) password(ctx context.Context, req GrantRequest) (*AccessToken, error) {
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}
	var appID *int64
	if req.ClientID != "" {
		app, err := s.resolver.ResolveApp(ctx, req.ClientID, req.ClientSecret, req.Tenant)
		if err != nil {
			return nil, err
		}
		appID = app.AppID
	}
	userID, err := s.resolver.ResolveUser(ctx, req.Username, req.Password, req.Tenant)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	return s.issue(ctx, req, &Credentials{AppID: appID, UserID: userID})
}

func (s *GrantService) refresh(ctx context.Context, req GrantRequest) (*AccessToken, error) {
	app, err := s.resolver.ResolveApp(ctx, req.ClientID, req.ClientSecret, req.Tenant)
	if err != nil {
		return nil, err
	}
	return s.issuer.Refresh(ctx, req.Tenant, *app.AppID, req.RefreshToken, req.RemoteAddr, s.lifetimes.Token, s.lifetimes.Refresh)
}

func (s *GrantService) issue(ctx context.Context, req GrantRequest, creds *Credentials) (*AccessToken, error) {
	scopes, err := s.authority.Authorize(ctx, req.Scope, creds.AppID, creds.UserID, req.Tenant)
	if err != nil {
		return nil, err
	}
	return s.issuer.Generate(ctx, GenerateRequest{
		Tenant:     req.Tenant,
		AppID:      creds.AppID,
		UserID:     creds.UserID,
		Scopes:     scopes,
		RemoteAddr: req.RemoteAddr,
		TTL:        s.lifetimes.Token,
		RefreshTTL: s.lifetimes.Refresh,
	})
}

func isGrantRejection(err error) bool {
	for _, target := range []error{ErrInvalidClient, ErrInvalidScope, ErrInvalidGrant, ErrInvalidRequest, ErrUnsupportedGrantType} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
