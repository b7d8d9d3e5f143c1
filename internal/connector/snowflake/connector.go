package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/sluicehq/sluice/internal/connector"
)

// SnowflakeConnector addresses Snowflake with password or key-pair (JWT)
// authentication.
type SnowflakeConnector struct{}

// New creates a new SnowflakeConnector.
func New() connector.Connector { return SnowflakeConnector{} }

func (SnowflakeConnector) Engine() connector.Engine { return connector.Snowflake }

func (SnowflakeConnector) DriverName() string { return "snowflake" }

func (SnowflakeConnector) Schema() connector.Schema {
	return connector.Schema{
		{Name: "account", Type: connector.String, Required: true},
		{Name: "user", Type: connector.String, Required: true},
		{Name: "password", Type: connector.String, Secret: true},
		{Name: "private_key_path", Type: connector.String, Secret: true, Description: "PEM key for key-pair auth"},
		{Name: "database", Type: connector.String},
		{Name: "schema", Type: connector.String, Default: "PUBLIC"},
		{Name: "warehouse", Type: connector.String},
		{Name: "role", Type: connector.String},
	}
}

// DSN builds the driver DSN. When private_key_path is set the key is loaded
// and JWT authentication replaces the password.
func (SnowflakeConnector) DSN(cfg connector.Config) (string, error) {
	sf := &gosnowflake.Config{
		Account:   cfg.String("account"),
		User:      cfg.String("user"),
		Database:  cfg.String("database"),
		Schema:    cfg.String("schema"),
		Warehouse: cfg.String("warehouse"),
		Role:      cfg.String("role"),
	}

	switch {
	case cfg.String("private_key_path") != "":
		key, err := loadPrivateKey(cfg.String("private_key_path"))
		if err != nil {
			return "", fmt.Errorf("snowflake jwt auth: %w", err)
		}
		sf.Authenticator = gosnowflake.AuthTypeJwt
		sf.PrivateKey = key
	case cfg.String("password") != "":
		sf.Password = cfg.String("password")
	default:
		return "", fmt.Errorf("%w: snowflake requires password or private_key_path", connector.ErrInvalidConfig)
	}

	return gosnowflake.DSN(sf)
}

// loadPrivateKey reads a PEM-encoded RSA private key in PKCS#1 or PKCS#8 form.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file %q: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}

	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA (got %T)", key)
	}
	return rsaKey, nil
}
