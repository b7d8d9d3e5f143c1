package mssql

import (
	"net"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/sluicehq/sluice/internal/connector"
)

// MSSQLConnector addresses SQL Server through go-mssqldb.
type MSSQLConnector struct{}

// New creates a new MSSQLConnector.
func New() connector.Connector { return MSSQLConnector{} }

func (MSSQLConnector) Engine() connector.Engine { return connector.SQLServer }

func (MSSQLConnector) DriverName() string { return "sqlserver" }

func (MSSQLConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "host", Type: connector.String, Required: true},
		{Name: "port", Type: connector.Int, Default: 1433},
		{Name: "instance", Type: connector.String},
		{Name: "database", Type: connector.String, Required: true},
		{Name: "user", Type: connector.String, Required: true},
		{Name: "password", Type: connector.String, Secret: true},
		{Name: "encrypt", Type: connector.String, Default: "true"},
		{Name: "trust_server_certificate", Type: connector.Bool},
		{Name: "options", Type: connector.Map},
	}
}

// DSN builds a sqlserver:// URL. A named instance replaces the port.
func (MSSQLConnector) DSN(cfg connector.Config) (string, error) {
	q := url.Values{}
	q.Set("database", cfg.String("database"))
	q.Set("encrypt", cfg.String("encrypt"))
	if cfg.Bool("trust_server_certificate") {
		q.Set("TrustServerCertificate", "true")
	}
	for k, v := range cfg.Options("options") {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.String("user"), cfg.String("password")),
		RawQuery: q.Encode(),
	}
	if inst := cfg.String("instance"); inst != "" {
		u.Host = cfg.String("host")
		u.Path = "/" + inst
	} else {
		u.Host = net.JoinHostPort(cfg.String("host"), strconv.Itoa(cfg.Int("port")))
	}
	return u.String(), nil
}
