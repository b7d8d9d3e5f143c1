package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 1,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS apps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL DEFAULT '',
			user_id INTEGER NOT NULL REFERENCES users(id),
			status INTEGER NOT NULL DEFAULT 1,
			name TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			app_key TEXT NOT NULL,
			app_secret_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, app_key)
		)`,

		`CREATE TABLE IF NOT EXISTS scopes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			UNIQUE(tenant_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS app_scopes (
			app_id INTEGER NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
			scope_id INTEGER NOT NULL REFERENCES scopes(id) ON DELETE CASCADE,
			PRIMARY KEY (app_id, scope_id)
		)`,

		`CREATE TABLE IF NOT EXISTS user_scopes (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			scope_id INTEGER NOT NULL REFERENCES scopes(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, scope_id)
		)`,

		`CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL DEFAULT '',
			app_id INTEGER REFERENCES apps(id),
			user_id INTEGER NOT NULL REFERENCES users(id),
			status INTEGER NOT NULL DEFAULT 1,
			scope TEXT NOT NULL CHECK (scope <> ''),
			token_hash TEXT NOT NULL UNIQUE,
			refresh_hash TEXT NOT NULL UNIQUE,
			ip TEXT NOT NULL DEFAULT '',
			issued_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			refresh_expires_at DATETIME NOT NULL,
			CHECK (expires_at > issued_at)
		)`,

		`CREATE TABLE IF NOT EXISTS connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			class TEXT NOT NULL,
			config BLOB NOT NULL,
			max_open_conns INTEGER NOT NULL DEFAULT 25,
			max_idle_conns INTEGER NOT NULL DEFAULT 5,
			conn_max_lifetime_ms INTEGER NOT NULL DEFAULT 300000,
			conn_max_idle_time_ms INTEGER NOT NULL DEFAULT 60000,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(tenant_id, name)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_apps_tenant ON apps(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_tenant ON tokens(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_app ON tokens(app_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens(user_id)`,

		// v2: Key-value settings table (key fingerprint, instance id).
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,

		// v3: Operator-visible label on tokens minted outside a grant.
		`ALTER TABLE tokens ADD COLUMN name TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
