package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDefaultPoolConfig(t *testing.T) {
	pc := DefaultPoolConfig()

	if pc.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", pc.MaxOpenConns)
	}
	if pc.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %d, want 5", pc.MaxIdleConns)
	}
	if pc.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want %v", pc.ConnMaxLifetime, 5*time.Minute)
	}
}

func TestTokenScopes(t *testing.T) {
	tok := Token{Scope: "backend,authorization"}
	got := tok.Scopes()
	if len(got) != 2 || got[0] != "backend" || got[1] != "authorization" {
		t.Errorf("Scopes() = %v", got)
	}
	if !tok.HasScope("authorization") {
		t.Error("expected HasScope(authorization)")
	}
	if tok.HasScope("auth") {
		t.Error("HasScope must not match prefixes")
	}
	if (&Token{}).Scopes() != nil {
		t.Error("empty scope should split to nil")
	}
}

func TestTokenIsUsable(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tok  Token
		want bool
	}{
		{"active", Token{Status: TokenStatusActive, ExpiresAt: now.Add(time.Minute)}, true},
		{"expired", Token{Status: TokenStatusActive, ExpiresAt: now}, false},
		{"revoked", Token{Status: TokenStatusRevoked, ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.IsUsable(now); got != tt.want {
				t.Errorf("IsUsable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSensitiveFieldsNotSerialized(t *testing.T) {
	app := App{ID: 1, Name: "web", AppKey: "abc", SecretHash: "deadbeef"}
	user := User{ID: 1, Name: "alice", PasswordHash: "$2a$10$hash"}
	tok := Token{ID: 1, TokenHash: "t-hash", RefreshHash: "r-hash"}
	conn := Connection{ID: 1, Name: "main", Config: []byte("ciphertext")}

	for name, v := range map[string]any{"app": app, "user": user, "token": tok, "connection": conn} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		for _, leak := range []string{"deadbeef", "$2a$10$hash", "t-hash", "r-hash", "ciphertext", "Y2lwaGVydGV4dA"} {
			if strings.Contains(string(data), leak) {
				t.Errorf("%s JSON leaks %q: %s", name, leak, data)
			}
		}
	}
}

func TestScopeNames(t *testing.T) {
	got := ScopeNames([]Scope{{ID: 1, Name: "backend"}, {ID: 2, Name: "consumer"}})
	if strings.Join(got, ",") != "backend,consumer" {
		t.Errorf("ScopeNames = %v", got)
	}
}
