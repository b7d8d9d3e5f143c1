package sqlite

import (
	"net/url"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sluicehq/sluice/internal/connector"
)

// SQLiteConnector addresses a SQLite file (or :memory:) through the pure-Go
// modernc driver.
type SQLiteConnector struct{}

// New creates a new SQLiteConnector.
func New() connector.Connector { return SQLiteConnector{} }

func (SQLiteConnector) Engine() connector.Engine { return connector.SQLite }

func (SQLiteConnector) DriverName() string { return "sqlite" }

func (SQLiteConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "path", Type: connector.String, Required: true, Description: "file path or :memory:"},
		{Name: "read_only", Type: connector.Bool},
		{Name: "busy_timeout_ms", Type: connector.Int, Default: 5000},
		{Name: "options", Type: connector.Map},
	}
}

// DSN appends pragmas and options as query parameters to the path. Read-only
// access needs the file: URI form.
func (SQLiteConnector) DSN(cfg connector.Config) (string, error) {
	path := cfg.String("path")
	q := url.Values{}
	if n := cfg.Int("busy_timeout_ms"); n > 0 {
		q.Add("_pragma", "busy_timeout("+strconv.Itoa(n)+")")
	}
	if cfg.Bool("read_only") {
		q.Set("mode", "ro")
		if !strings.HasPrefix(path, "file:") {
			path = "file:" + path
		}
	}
	for k, v := range cfg.Options("options") {
		q.Set(k, v)
	}
	if len(q) == 0 {
		return path, nil
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode(), nil
}
