package model

import "time"

// User status values.
const (
	UserStatusActive   = 1
	UserStatusDisabled = 2
)

// User is a principal that owns apps and may authenticate with a password.
// Passwords are stored as bcrypt hashes.
type User struct {
	ID           int64     `json:"id" db:"id"`
	TenantID     string    `json:"-" db:"tenant_id"`
	Status       int       `json:"status" db:"status"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email,omitempty" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // bcrypt hash, never expose
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool { return u.Status == UserStatusActive }
