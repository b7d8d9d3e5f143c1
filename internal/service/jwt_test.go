package service

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/secret"
)

func testSigningKey(t *testing.T, seed byte) secret.Key {
	t.Helper()
	project := make([]byte, 32)
	for i := range project {
		project[i] = seed
	}
	k, err := secret.DeriveKey(project, secret.LabelSigning)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return k
}

func futureClaims(now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Tenant: "acme",
		AppID:  7,
		Scope:  []string{"backend"},
	}
}

func TestJWTRoundTrip(t *testing.T) {
	c := NewJWTCodec(testSigningKey(t, 1), "sluice")
	s, err := c.Encode(futureClaims(time.Now()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Subject != "42" || got.Tenant != "acme" || got.AppID != 7 {
		t.Errorf("claims = %+v", got)
	}
	if got.Issuer != "sluice" {
		t.Errorf("Issuer = %q, want sluice", got.Issuer)
	}
	if got.ID == "" || got.IssuedAt == nil {
		t.Error("ID and IssuedAt should be filled in")
	}
	if !reflect.DeepEqual(got.Scope, []string{"backend"}) {
		t.Errorf("Scope = %v", got.Scope)
	}
}

func TestJWTExpired(t *testing.T) {
	c := NewJWTCodec(testSigningKey(t, 1), "sluice")
	s, err := c.Encode(futureClaims(time.Now()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := c.Decode(s); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestJWTInvalidSignature(t *testing.T) {
	c := NewJWTCodec(testSigningKey(t, 1), "sluice")
	good, err := c.Encode(futureClaims(time.Now()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	otherKey, err := NewJWTCodec(testSigningKey(t, 2), "sluice").Encode(futureClaims(time.Now()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	otherIssuer, err := NewJWTCodec(testSigningKey(t, 1), "someone-else").Encode(futureClaims(time.Now()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, futureClaims(time.Now())).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	noExpiry, err := c.Encode(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"garbage":      "garbage.token.here",
		"empty":        "",
		"other key":    otherKey,
		"other issuer": otherIssuer,
		"alg none":     unsigned,
		"tampered":     tampered,
		"no expiry":    noExpiry,
	}
	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Decode(s); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("err = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestAssertCapsExpiryAtToken(t *testing.T) {
	c := NewJWTCodec(testSigningKey(t, 1), "sluice")
	now := time.Now()
	appID := int64(3)
	tok := &model.Token{UserID: 9, AppID: &appID, Scope: "backend,authorization", ExpiresAt: now.Add(time.Minute)}

	s, err := c.Assert(tok, "acme", AssertionTTL)
	if err != nil {
		t.Fatalf("Assert: %v", err)
	}
	claims, err := c.Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.ExpiresAt.After(tok.ExpiresAt.Add(time.Second)) {
		t.Errorf("assertion expires %v after token %v", claims.ExpiresAt, tok.ExpiresAt)
	}
	if claims.Subject != "9" || claims.AppID != 3 || claims.Tenant != "acme" {
		t.Errorf("claims = %+v", claims)
	}
	if !reflect.DeepEqual(claims.Scope, []string{"backend", "authorization"}) {
		t.Errorf("Scope = %v", claims.Scope)
	}
}
