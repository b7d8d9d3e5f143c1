package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/secret"
)

// AssertionTTL is the lifetime of assertions minted for bearer tokens.
const AssertionTTL = 5 * time.Minute

// Claims are the contents of a signed assertion.
type Claims struct {
	jwt.RegisteredClaims
	Tenant string   `json:"tenant,omitempty"`
	AppID  int64    `json:"app_id,omitempty"`
	Scope  []string `json:"scope,omitempty"`
}

// JWTCodec signs and verifies HS256 assertions. Assertions are stateless and
// short-lived, unlike the opaque tokens the TokenIssuer persists.
type JWTCodec struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewJWTCodec creates a codec signing with key.
func NewJWTCodec(key secret.Key, issuer string) *JWTCodec {
	return &JWTCodec{key: key.Bytes(), issuer: issuer, now: time.Now}
}

// Encode signs c. Issuer, IssuedAt and ID are filled in when empty.
func (c *JWTCodec) Encode(claims Claims) (string, error) {
	now := c.now()
	if claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return s, nil
}

// Decode verifies s and returns its claims. An expired assertion yields
// ErrExpired; anything else that fails verification yields
// ErrInvalidSignature.
func (c *JWTCodec) Decode(s string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(s, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// Assert mints an assertion describing a validated bearer token.
func (c *JWTCodec) Assert(tok *model.Token, tenantID string, ttl time.Duration) (string, error) {
	now := c.now()
	exp := now.Add(ttl)
	if tok.ExpiresAt.Before(exp) {
		exp = tok.ExpiresAt
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(tok.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Tenant: tenantID,
		Scope:  tok.Scopes(),
	}
	if tok.AppID != nil {
		claims.AppID = *tok.AppID
	}
	return c.Encode(claims)
}
