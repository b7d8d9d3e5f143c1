package mysql

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/sluicehq/sluice/internal/connector"
)

// MySQLConnector addresses MySQL and MariaDB through go-sql-driver.
type MySQLConnector struct{}

// New creates a new MySQLConnector.
func New() connector.Connector { return MySQLConnector{} }

func (MySQLConnector) Engine() connector.Engine { return connector.MySQL }

func (MySQLConnector) DriverName() string { return "mysql" }

func (MySQLConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "host", Type: connector.String, Required: true},
		{Name: "port", Type: connector.Int, Default: 3306},
		{Name: "database", Type: connector.String, Required: true},
		{Name: "user", Type: connector.String, Required: true},
		{Name: "password", Type: connector.String, Secret: true},
		{Name: "tls", Type: connector.String, Description: "true, false, skip-verify or preferred"},
		{Name: "timeout", Type: connector.String, Default: "10s"},
		{Name: "options", Type: connector.Map},
	}
}

// DSN builds the driver's native user:pass@tcp(host:port)/db form. Building
// through mysql.Config keeps passwords containing @ or / unambiguous.
func (MySQLConnector) DSN(cfg connector.Config) (string, error) {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.String("user")
	mc.Passwd = cfg.String("password")
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.String("host"), strconv.Itoa(cfg.Int("port")))
	mc.DBName = cfg.String("database")
	mc.ParseTime = true
	if tls := cfg.String("tls"); tls != "" {
		mc.TLSConfig = tls
	}
	if t := cfg.String("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return "", err
		}
		mc.Timeout = d
	}
	if opts := cfg.Options("options"); len(opts) > 0 {
		mc.Params = make(map[string]string, len(opts))
		for k, v := range opts {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN(), nil
}
