package model

import "time"

// Connection is a named, tenant-scoped database connection. Its configuration
// map is only ever persisted encrypted; Config holds the sealed blob.
type Connection struct {
	ID        int64      `json:"id" db:"id"`
	TenantID  string     `json:"-" db:"tenant_id"`
	Name      string     `json:"name" db:"name"`
	Class     string     `json:"class" db:"class"` // engine type: postgres, mysql, sqlserver, oracle, snowflake, sqlite
	Config    []byte     `json:"-" db:"config"`
	Pool      PoolConfig `json:"pool"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// PoolConfig controls the database connection pool opened for a connection.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns sensible defaults for a database connection pool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}
