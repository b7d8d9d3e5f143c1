package model

import "time"

// App status values.
const (
	AppStatusActive   = 1
	AppStatusInactive = 2
	AppStatusDeleted  = 3
)

// App is a client application owned by a user. Apps authenticate with their
// key and secret; only a SHA-256 digest of the secret is stored.
type App struct {
	ID         int64     `json:"id" db:"id"`
	TenantID   string    `json:"-" db:"tenant_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Status     int       `json:"status" db:"status"`
	Name       string    `json:"name" db:"name"`
	URL        string    `json:"url,omitempty" db:"url"`
	AppKey     string    `json:"app_key" db:"app_key"`
	SecretHash string    `json:"-" db:"app_secret_hash"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsActive reports whether the app may authenticate.
func (a *App) IsActive() bool { return a.Status == AppStatusActive }
