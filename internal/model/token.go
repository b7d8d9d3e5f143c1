package model

import (
	"strings"
	"time"
)

// Token status values. A token is never deleted; revocation is the only
// mutation after issue.
const (
	TokenStatusActive  = 1
	TokenStatusRevoked = 2
)

// Token is a persisted access grant. The raw access and refresh values are
// returned once at issue time; only their SHA-256 digests are stored.
type Token struct {
	ID               int64     `json:"id" db:"id"`
	TenantID         string    `json:"-" db:"tenant_id"`
	AppID            *int64    `json:"app_id,omitempty" db:"app_id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	Name             string    `json:"name,omitempty" db:"name"`
	Status           int       `json:"status" db:"status"`
	Scope            string    `json:"scope" db:"scope"` // comma-separated
	TokenHash        string    `json:"-" db:"token_hash"`
	RefreshHash      string    `json:"-" db:"refresh_hash"`
	IP               string    `json:"ip" db:"ip"`
	IssuedAt         time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at" db:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at" db:"refresh_expires_at"`
}

// Scopes splits the stored scope list.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Split(t.Scope, ",")
}

// HasScope reports whether the token carries the named scope.
func (t *Token) HasScope(name string) bool {
	for _, s := range t.Scopes() {
		if s == name {
			return true
		}
	}
	return false
}

// IsUsable reports whether the token is active and unexpired at now.
func (t *Token) IsUsable(now time.Time) bool {
	return t.Status == TokenStatusActive && now.Before(t.ExpiresAt)
}

// TokenFilter narrows a token listing. Zero values mean "any".
type TokenFilter struct {
	AppID  *int64
	UserID *int64
	Status int
	Scope  string // substring match against the scope list
	IP     string
	Limit  int
	Offset int
}
