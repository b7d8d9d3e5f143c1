package oracle

import (
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/sluicehq/sluice/internal/connector"
)

// OracleConnector addresses Oracle Database through the pure-Go go-ora
// driver.
type OracleConnector struct{}

// New creates a new OracleConnector.
func New() connector.Connector { return OracleConnector{} }

func (OracleConnector) Engine() connector.Engine { return connector.Oracle }

func (OracleConnector) DriverName() string { return "oracle" }

func (OracleConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "host", Type: connector.String, Required: true},
		{Name: "port", Type: connector.Int, Default: 1521},
		{Name: "service", Type: connector.String, Required: true, Description: "service name"},
		{Name: "user", Type: connector.String, Required: true},
		{Name: "password", Type: connector.String, Secret: true},
		{Name: "options", Type: connector.Map, Description: "go-ora url options such as SSL or TRACE FILE"},
	}
}

// DSN builds an oracle:// URL with go-ora's own builder.
func (OracleConnector) DSN(cfg connector.Config) (string, error) {
	return go_ora.BuildUrl(
		cfg.String("host"),
		cfg.Int("port"),
		cfg.String("service"),
		cfg.String("user"),
		cfg.String("password"),
		cfg.Options("options"),
	), nil
}
