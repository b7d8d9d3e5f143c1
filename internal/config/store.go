package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/tenant"
)

// Store manages Sluice's configuration state backed by SQLite. It persists
// users, apps, scopes, tokens and encrypted connections. Every method takes
// the tenant partition it operates in; rows of other tenants are invisible.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "sluice.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func affectedOne(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new user. PasswordHash must already be a bcrypt hash.
func (s *Store) CreateUser(ctx context.Context, t tenant.Context, u *model.User) error {
	u.TenantID = t.ID()
	u.CreatedAt = time.Now().UTC()
	if u.Status == 0 {
		u.Status = model.UserStatusActive
	}

	const q = `INSERT INTO users (tenant_id, status, name, email, password_hash, created_at)
		VALUES (:tenant_id, :status, :name, :email, :password_hash, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		return fmt.Errorf("insert user: %w", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get user id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, t tenant.Context, id int64) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ? AND tenant_id = ?", id, t.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByName returns a user by its unique name.
func (s *Store) GetUserByName(ctx context.Context, t tenant.Context, name string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE name = ? AND tenant_id = ?", name, t.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users of the tenant.
func (s *Store) ListUsers(ctx context.Context, t tenant.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users WHERE tenant_id = ? ORDER BY name", t.ID()); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserStatus enables or disables a user.
func (s *Store) SetUserStatus(ctx context.Context, t tenant.Context, id int64, status int) error {
	result, err := s.db.ExecContext(ctx, "UPDATE users SET status = ? WHERE id = ? AND tenant_id = ?", status, id, t.ID())
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return affectedOne(result, "update user status")
}

// ---------------------------------------------------------------------------
// Apps
// ---------------------------------------------------------------------------

// CreateApp inserts a new app. SecretHash must already be set (use HashToken).
// The owning user must belong to the same tenant.
func (s *Store) CreateApp(ctx context.Context, t tenant.Context, app *model.App) error {
	if _, err := s.GetUser(ctx, t, app.UserID); err != nil {
		return fmt.Errorf("app owner: %w", err)
	}
	app.TenantID = t.ID()
	app.CreatedAt = time.Now().UTC()
	if app.Status == 0 {
		app.Status = model.AppStatusActive
	}

	const q = `INSERT INTO apps (tenant_id, user_id, status, name, url, app_key, app_secret_hash, created_at)
		VALUES (:tenant_id, :user_id, :status, :name, :url, :app_key, :app_secret_hash, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, app)
	if err != nil {
		return fmt.Errorf("insert app: %w", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get app id: %w", err)
	}
	app.ID = id
	return nil
}

// GetApp returns an app by ID regardless of status.
func (s *Store) GetApp(ctx context.Context, t tenant.Context, id int64) (*model.App, error) {
	var app model.App
	if err := s.db.GetContext(ctx, &app, "SELECT * FROM apps WHERE id = ? AND tenant_id = ?", id, t.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &app, nil
}

// GetActiveAppByKey returns the active app with the given key.
func (s *Store) GetActiveAppByKey(ctx context.Context, t tenant.Context, key string) (*model.App, error) {
	var app model.App
	const q = "SELECT * FROM apps WHERE app_key = ? AND tenant_id = ? AND status = ?"
	if err := s.db.GetContext(ctx, &app, q, key, t.ID(), model.AppStatusActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get app by key: %w", err)
	}
	return &app, nil
}

// ListApps returns all non-deleted apps of the tenant.
func (s *Store) ListApps(ctx context.Context, t tenant.Context) ([]model.App, error) {
	apps := []model.App{}
	const q = "SELECT * FROM apps WHERE tenant_id = ? AND status <> ? ORDER BY name"
	if err := s.db.SelectContext(ctx, &apps, q, t.ID(), model.AppStatusDeleted); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

// SetAppStatus changes an app's status. Deleting an app is a status change so
// that tokens issued to it keep their reference.
func (s *Store) SetAppStatus(ctx context.Context, t tenant.Context, id int64, status int) error {
	result, err := s.db.ExecContext(ctx, "UPDATE apps SET status = ? WHERE id = ? AND tenant_id = ?", status, id, t.ID())
	if err != nil {
		return fmt.Errorf("update app status: %w", err)
	}
	return affectedOne(result, "update app status")
}

// ---------------------------------------------------------------------------
// Scopes
// ---------------------------------------------------------------------------

// CreateScope inserts a new scope.
func (s *Store) CreateScope(ctx context.Context, t tenant.Context, scope *model.Scope) error {
	scope.TenantID = t.ID()

	const q = `INSERT INTO scopes (tenant_id, name, description, category)
		VALUES (:tenant_id, :name, :description, :category)`

	result, err := s.db.NamedExecContext(ctx, q, scope)
	if err != nil {
		return fmt.Errorf("insert scope: %w", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get scope id: %w", err)
	}
	scope.ID = id
	return nil
}

// GetScopeByName returns a scope by its unique name.
func (s *Store) GetScopeByName(ctx context.Context, t tenant.Context, name string) (*model.Scope, error) {
	var scope model.Scope
	if err := s.db.GetContext(ctx, &scope, "SELECT * FROM scopes WHERE name = ? AND tenant_id = ?", name, t.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scope by name: %w", err)
	}
	return &scope, nil
}

// ListScopes returns all scopes of the tenant ordered by ID.
func (s *Store) ListScopes(ctx context.Context, t tenant.Context) ([]model.Scope, error) {
	scopes := []model.Scope{}
	if err := s.db.SelectContext(ctx, &scopes, "SELECT * FROM scopes WHERE tenant_id = ? ORDER BY id", t.ID()); err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	return scopes, nil
}

// ListAppScopes returns the scopes assigned to an app, ordered by scope ID.
func (s *Store) ListAppScopes(ctx context.Context, t tenant.Context, appID int64) ([]model.Scope, error) {
	scopes := []model.Scope{}
	const q = `SELECT s.* FROM scopes s
		JOIN app_scopes a ON a.scope_id = s.id
		JOIN apps p ON p.id = a.app_id
		WHERE a.app_id = ? AND s.tenant_id = ? AND p.tenant_id = ?
		ORDER BY s.id`
	if err := s.db.SelectContext(ctx, &scopes, q, appID, t.ID(), t.ID()); err != nil {
		return nil, fmt.Errorf("list app scopes: %w", err)
	}
	return scopes, nil
}

// ListUserScopes returns the scopes granted to a user, ordered by scope ID.
func (s *Store) ListUserScopes(ctx context.Context, t tenant.Context, userID int64) ([]model.Scope, error) {
	scopes := []model.Scope{}
	const q = `SELECT s.* FROM scopes s
		JOIN user_scopes us ON us.scope_id = s.id
		JOIN users u ON u.id = us.user_id
		WHERE us.user_id = ? AND s.tenant_id = ? AND u.tenant_id = ?
		ORDER BY s.id`
	if err := s.db.SelectContext(ctx, &scopes, q, userID, t.ID(), t.ID()); err != nil {
		return nil, fmt.Errorf("list user scopes: %w", err)
	}
	return scopes, nil
}

// SetAppScopes replaces the scopes assigned to an app within a transaction.
// Every scope name must exist in the tenant.
func (s *Store) SetAppScopes(ctx context.Context, t tenant.Context, appID int64, names []string) error {
	if _, err := s.GetApp(ctx, t, appID); err != nil {
		return err
	}
	return s.replaceAssignments(ctx, t, "app_scopes", "app_id", appID, names)
}

// SetUserScopes replaces the scopes granted to a user within a transaction.
// Every scope name must exist in the tenant.
func (s *Store) SetUserScopes(ctx context.Context, t tenant.Context, userID int64, names []string) error {
	if _, err := s.GetUser(ctx, t, userID); err != nil {
		return err
	}
	return s.replaceAssignments(ctx, t, "user_scopes", "user_id", userID, names)
}

func (s *Store) replaceAssignments(ctx context.Context, t tenant.Context, table, column string, ownerID int64, names []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+column+" = ?", ownerID); err != nil {
		return fmt.Errorf("delete existing %s: %w", table, err)
	}

	insertQ := "INSERT OR IGNORE INTO " + table + " (" + column + ", scope_id) " +
		"SELECT ?, id FROM scopes WHERE name = ? AND tenant_id = ?"
	for _, name := range names {
		result, err := tx.ExecContext(ctx, insertQ, ownerID, name, t.ID())
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			var exists int
			if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM scopes WHERE name = ? AND tenant_id = ?", name, t.ID()); err != nil {
				return fmt.Errorf("check scope: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("scope %q: %w", name, ErrNotFound)
			}
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// CreateToken inserts a token row. A collision on the access or refresh hash
// returns ErrConflict and writes nothing.
func (s *Store) CreateToken(ctx context.Context, t tenant.Context, tok *model.Token) error {
	return insertToken(ctx, s.db, t, tok)
}

// RotateToken consumes the active token oldID and inserts next in one
// transaction. ErrNotFound means oldID was no longer active; ErrConflict means
// next collided with a stored hash. Either way the old token is untouched.
func (s *Store) RotateToken(ctx context.Context, t tenant.Context, oldID int64, next *model.Token) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		"UPDATE tokens SET status = ? WHERE id = ? AND tenant_id = ? AND status = ?",
		model.TokenStatusRevoked, oldID, t.ID(), model.TokenStatusActive)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if err := affectedOne(result, "consume token"); err != nil {
		return err
	}
	if err := insertToken(ctx, tx, t, next); err != nil {
		next.ID = 0
		return err
	}
	if err := tx.Commit(); err != nil {
		next.ID = 0
		return fmt.Errorf("commit rotation: %w", classify(err))
	}
	return nil
}

func insertToken(ctx context.Context, db sqlx.ExtContext, t tenant.Context, tok *model.Token) error {
	tok.TenantID = t.ID()
	if tok.Status == 0 {
		tok.Status = model.TokenStatusActive
	}

	const q = `INSERT INTO tokens
		(tenant_id, app_id, user_id, name, status, scope, token_hash, refresh_hash, ip, issued_at, expires_at, refresh_expires_at)
		VALUES
		(:tenant_id, :app_id, :user_id, :name, :status, :scope, :token_hash, :refresh_hash, :ip, :issued_at, :expires_at, :refresh_expires_at)`

	result, err := sqlx.NamedExecContext(ctx, db, q, tok)
	if err != nil {
		return fmt.Errorf("insert token: %w", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get token id: %w", err)
	}
	tok.ID = id
	return nil
}

// GetToken returns a token by ID.
func (s *Store) GetToken(ctx context.Context, t tenant.Context, id int64) (*model.Token, error) {
	return s.getToken(ctx, "SELECT * FROM tokens WHERE id = ? AND tenant_id = ?", id, t.ID())
}

// GetTokenByHash looks up a token by the SHA-256 hash of its access value.
func (s *Store) GetTokenByHash(ctx context.Context, t tenant.Context, hash string) (*model.Token, error) {
	return s.getToken(ctx, "SELECT * FROM tokens WHERE token_hash = ? AND tenant_id = ?", hash, t.ID())
}

// GetTokenByRefreshHash looks up a token by the SHA-256 hash of its refresh
// value.
func (s *Store) GetTokenByRefreshHash(ctx context.Context, t tenant.Context, hash string) (*model.Token, error) {
	return s.getToken(ctx, "SELECT * FROM tokens WHERE refresh_hash = ? AND tenant_id = ?", hash, t.ID())
}

func (s *Store) getToken(ctx context.Context, q string, args ...any) (*model.Token, error) {
	var tok model.Token
	if err := s.db.GetContext(ctx, &tok, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &tok, nil
}

// ListTokens returns tokens matching the filter, newest first, together with
// the total number of matches ignoring limit and offset.
func (s *Store) ListTokens(ctx context.Context, t tenant.Context, f model.TokenFilter) ([]model.Token, int64, error) {
	where := []string{"tenant_id = ?"}
	args := []any{t.ID()}
	if f.AppID != nil {
		where = append(where, "app_id = ?")
		args = append(args, *f.AppID)
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != 0 {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Scope != "" {
		where = append(where, "scope LIKE ?")
		args = append(args, "%"+f.Scope+"%")
	}
	if f.IP != "" {
		where = append(where, "ip = ?")
		args = append(args, f.IP)
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tokens WHERE "+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count tokens: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 16
	}
	q := "SELECT * FROM tokens WHERE " + clause + " ORDER BY id DESC LIMIT ? OFFSET ?"
	tokens := []model.Token{}
	if err := s.db.SelectContext(ctx, &tokens, q, append(args, limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, total, nil
}

// RevokeToken marks an active token as revoked. Revoking an already revoked
// token is not an error.
func (s *Store) RevokeToken(ctx context.Context, t tenant.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tokens SET status = ? WHERE id = ? AND tenant_id = ?", model.TokenStatusRevoked, id, t.ID())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return affectedOne(result, "revoke token")
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// connectionRow maps 1:1 to the connections table; model.Connection nests
// its pool settings.
type connectionRow struct {
	ID                int64     `db:"id"`
	TenantID          string    `db:"tenant_id"`
	Name              string    `db:"name"`
	Class             string    `db:"class"`
	Config            []byte    `db:"config"`
	MaxOpenConns      int       `db:"max_open_conns"`
	MaxIdleConns      int       `db:"max_idle_conns"`
	ConnMaxLifetimeMs int64     `db:"conn_max_lifetime_ms"`
	ConnMaxIdleTimeMs int64     `db:"conn_max_idle_time_ms"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func connectionRowFromModel(c *model.Connection) connectionRow {
	return connectionRow{
		ID:                c.ID,
		TenantID:          c.TenantID,
		Name:              c.Name,
		Class:             c.Class,
		Config:            c.Config,
		MaxOpenConns:      c.Pool.MaxOpenConns,
		MaxIdleConns:      c.Pool.MaxIdleConns,
		ConnMaxLifetimeMs: c.Pool.ConnMaxLifetime.Milliseconds(),
		ConnMaxIdleTimeMs: c.Pool.ConnMaxIdleTime.Milliseconds(),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func (r connectionRow) toModel() model.Connection {
	return model.Connection{
		ID:       r.ID,
		TenantID: r.TenantID,
		Name:     r.Name,
		Class:    r.Class,
		Config:   r.Config,
		Pool: model.PoolConfig{
			MaxOpenConns:    r.MaxOpenConns,
			MaxIdleConns:    r.MaxIdleConns,
			ConnMaxLifetime: time.Duration(r.ConnMaxLifetimeMs) * time.Millisecond,
			ConnMaxIdleTime: time.Duration(r.ConnMaxIdleTimeMs) * time.Millisecond,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateConnection inserts a connection. Config must already be encrypted.
func (s *Store) CreateConnection(ctx context.Context, t tenant.Context, c *model.Connection) error {
	now := time.Now().UTC()
	c.TenantID = t.ID()
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `INSERT INTO connections
		(tenant_id, name, class, config, max_open_conns, max_idle_conns, conn_max_lifetime_ms, conn_max_idle_time_ms,
		 created_at, updated_at)
		VALUES
		(:tenant_id, :name, :class, :config, :max_open_conns, :max_idle_conns, :conn_max_lifetime_ms, :conn_max_idle_time_ms,
		 :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, connectionRowFromModel(c))
	if err != nil {
		return fmt.Errorf("insert connection: %w", classify(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get connection id: %w", err)
	}
	c.ID = id
	return nil
}

// UpdateConnection replaces a connection's class, config and pool settings.
func (s *Store) UpdateConnection(ctx context.Context, t tenant.Context, c *model.Connection) error {
	c.TenantID = t.ID()
	c.UpdatedAt = time.Now().UTC()

	const q = `UPDATE connections SET
		class = :class, config = :config, max_open_conns = :max_open_conns, max_idle_conns = :max_idle_conns,
		conn_max_lifetime_ms = :conn_max_lifetime_ms, conn_max_idle_time_ms = :conn_max_idle_time_ms,
		updated_at = :updated_at
		WHERE name = :name AND tenant_id = :tenant_id`

	result, err := s.db.NamedExecContext(ctx, q, connectionRowFromModel(c))
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	return affectedOne(result, "update connection")
}

// GetConnectionByName returns a connection by its unique name.
func (s *Store) GetConnectionByName(ctx context.Context, t tenant.Context, name string) (*model.Connection, error) {
	var row connectionRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM connections WHERE name = ? AND tenant_id = ?", name, t.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	c := row.toModel()
	return &c, nil
}

// ListConnections returns all connections of the tenant.
func (s *Store) ListConnections(ctx context.Context, t tenant.Context) ([]model.Connection, error) {
	var rows []connectionRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM connections WHERE tenant_id = ? ORDER BY name", t.ID()); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	conns := make([]model.Connection, len(rows))
	for i, r := range rows {
		conns[i] = r.toModel()
	}
	return conns, nil
}

// DeleteConnection removes a connection by name.
func (s *Store) DeleteConnection(ctx context.Context, t tenant.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM connections WHERE name = ? AND tenant_id = ?", name, t.ID())
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return affectedOne(result, "delete connection")
}

// ---------------------------------------------------------------------------
// Counts
// ---------------------------------------------------------------------------

var countQueries = map[string]string{
	"apps":        "SELECT COUNT(*) FROM apps WHERE tenant_id = ? AND status <> 3",
	"users":       "SELECT COUNT(*) FROM users WHERE tenant_id = ?",
	"scopes":      "SELECT COUNT(*) FROM scopes WHERE tenant_id = ?",
	"connections": "SELECT COUNT(*) FROM connections WHERE tenant_id = ?",
	"tokens":      "SELECT COUNT(*) FROM tokens WHERE tenant_id = ? AND status = 1",
}

// Count returns the number of live rows of a resource kind in the tenant.
// Kind is one of apps, users, scopes, connections or tokens.
func (s *Store) Count(ctx context.Context, t tenant.Context, kind string) (int, error) {
	q, ok := countQueries[kind]
	if !ok {
		return 0, fmt.Errorf("count: unknown resource kind %q", kind)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, q, t.ID()); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns a stored setting, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	if err := s.db.GetContext(ctx, &v, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores a setting, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const q = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashToken returns the hex-encoded SHA-256 hash of a raw token or secret.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
