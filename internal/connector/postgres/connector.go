package postgres

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sluicehq/sluice/internal/connector"
)

// PostgresConnector addresses PostgreSQL through the pgx stdlib driver.
type PostgresConnector struct{}

// New creates a new PostgresConnector.
func New() connector.Connector { return PostgresConnector{} }

func (PostgresConnector) Engine() connector.Engine { return connector.Postgres }

// DriverName returns the database/sql driver registered by pgx.
func (PostgresConnector) DriverName() string { return "pgx" }

func (PostgresConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "host", Type: connector.String, Required: true},
		{Name: "port", Type: connector.Int, Default: 5432},
		{Name: "database", Type: connector.String, Required: true},
		{Name: "user", Type: connector.String, Required: true},
		{Name: "password", Type: connector.String, Secret: true},
		{Name: "sslmode", Type: connector.String, Default: "prefer"},
		{Name: "search_path", Type: connector.String},
		{Name: "options", Type: connector.Map, Description: "extra connection parameters"},
	}
}

// DSN builds a postgres:// URL with the password percent-encoded and checks
// it with pgx's own parser.
func (PostgresConnector) DSN(cfg connector.Config) (string, error) {
	q := url.Values{}
	q.Set("sslmode", cfg.String("sslmode"))
	if sp := cfg.String("search_path"); sp != "" {
		q.Set("search_path", sp)
	}
	opts := cfg.Options("options")
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, opts[k])
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.String("host"), strconv.Itoa(cfg.Int("port"))),
		Path:     "/" + cfg.String("database"),
		RawQuery: q.Encode(),
	}
	if pw := cfg.String("password"); pw != "" {
		u.User = url.UserPassword(cfg.String("user"), pw)
	} else {
		u.User = url.User(cfg.String("user"))
	}
	dsn := u.String()

	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("postgres config: %w", err)
	}
	return dsn, nil
}
