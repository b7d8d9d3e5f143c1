package snowflake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/sluicehq/sluice/internal/connector"
)

func writePEM(t *testing.T, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0600); err != nil {
		t.Fatalf("write PEM: %v", err)
	}
	return path
}

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

func decode(t *testing.T, raw map[string]any) connector.Config {
	t.Helper()
	c := New()
	cfg, err := c.Schema().Decode(c.Engine(), raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return cfg
}

func TestPasswordDSN(t *testing.T) {
	cfg := decode(t, map[string]any{
		"account":   "xy12345",
		"user":      "loader",
		"password":  "pa:ss",
		"database":  "ANALYTICS",
		"warehouse": "WH",
	})
	dsn, err := New().DSN(cfg)
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	parsed, err := gosnowflake.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if parsed.User != "loader" || parsed.Password != "pa:ss" {
		t.Errorf("user/password = %q/%q", parsed.User, parsed.Password)
	}
	if parsed.Database != "ANALYTICS" || parsed.Schema != "PUBLIC" || parsed.Warehouse != "WH" {
		t.Errorf("db/schema/wh = %s/%s/%s", parsed.Database, parsed.Schema, parsed.Warehouse)
	}
}

func TestKeyPairDSN(t *testing.T) {
	der, err := x509.MarshalPKCS8PrivateKey(rsaKey(t))
	if err != nil {
		t.Fatalf("marshal PKCS8: %v", err)
	}
	cfg := decode(t, map[string]any{
		"account":          "xy12345",
		"user":             "loader",
		"private_key_path": writePEM(t, "PRIVATE KEY", der),
	})
	dsn, err := New().DSN(cfg)
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if !strings.Contains(strings.ToLower(dsn), "authenticator=snowflake_jwt") {
		t.Errorf("DSN missing jwt authenticator: %s", dsn)
	}
}

func TestDSNRequiresSecret(t *testing.T) {
	cfg := decode(t, map[string]any{"account": "xy12345", "user": "loader"})
	if _, err := New().DSN(cfg); !errors.Is(err, connector.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	key := rsaKey(t)
	pkcs8, _ := x509.MarshalPKCS8PrivateKey(key)

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{"pkcs1", func(t *testing.T) string { return writePEM(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key)) }, ""},
		{"pkcs8", func(t *testing.T) string { return writePEM(t, "PRIVATE KEY", pkcs8) }, ""},
		{"missing file", func(t *testing.T) string { return "/nonexistent/key.pem" }, "read private key file"},
		{"not pem", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "bad.pem")
			os.WriteFile(p, []byte("not a pem file"), 0600)
			return p
		}, "no PEM block"},
		{"ec block", func(t *testing.T) string { return writePEM(t, "EC PRIVATE KEY", []byte("fake")) }, "unsupported PEM block type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, err := loadPrivateKey(tt.path(t))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadPrivateKey: %v", err)
			}
			if loaded.N.Cmp(key.N) != 0 {
				t.Error("loaded key modulus does not match original")
			}
		})
	}
}
