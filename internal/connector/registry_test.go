package connector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sluicehq/sluice/internal/model"
)

// fakeConnector is a connector whose DSN never reaches a real driver.
type fakeConnector struct {
	engine Engine
}

func (f fakeConnector) Engine() Engine             { return f.engine }
func (f fakeConnector) DriverName() string         { return "fake-driver-not-registered" }
func (f fakeConnector) DSN(Config) (string, error) { return "fake", nil }
func (f fakeConnector) Schema() Schema {
	return Schema{
		{Name: "host", Type: String, Required: true},
		{Name: "port", Type: Int, Default: 1000},
		{Name: "tls", Type: Bool},
		{Name: "options", Type: Map},
	}
}

func TestParseEngine(t *testing.T) {
	for _, e := range Engines {
		if got, err := ParseEngine(string(e)); err != nil || got != e {
			t.Errorf("ParseEngine(%q) = %q, %v", e, got, err)
		}
	}
	for _, bad := range []string{"", "mongodb", "Postgres", "mssql"} {
		if _, err := ParseEngine(bad); !errors.Is(err, ErrUnknownEngine) {
			t.Errorf("ParseEngine(%q) error = %v, want ErrUnknownEngine", bad, err)
		}
	}
}

func TestSchemaDecode(t *testing.T) {
	s := fakeConnector{engine: Postgres}.Schema()

	cfg, err := s.Decode(Postgres, map[string]any{
		"host":    "h",
		"port":    json.Number("15432"),
		"tls":     "true",
		"options": map[string]any{"a": "b", "n": float64(3)},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.String("host") != "h" || cfg.Int("port") != 15432 || !cfg.Bool("tls") {
		t.Errorf("decoded = %+v", cfg)
	}
	if cfg.Options("options")["n"] != "3" {
		t.Errorf("options = %v", cfg.Options("options"))
	}

	cfg, err = s.Decode(Postgres, map[string]any{"host": "h"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Int("port") != 1000 {
		t.Errorf("default port = %d", cfg.Int("port"))
	}
	if cfg.Has("tls") {
		t.Error("absent optional field without default should be unset")
	}

	bad := []map[string]any{
		{},
		{"host": ""},
		{"host": 42},
		{"host": "h", "port": 1.5},
		{"host": "h", "tls": "maybe"},
		{"host": "h", "options": "k=v"},
		{"host": "h", "options": map[string]any{"nested": map[string]any{}}},
		{"host": "h", "dsn": "postgres://bypass"},
	}
	for i, raw := range bad {
		if _, err := s.Decode(Postgres, raw); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d %v: error = %v, want ErrInvalidConfig", i, raw, err)
		}
	}
}

func TestRegistryRejectsUnknownAndUnregistered(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeConnector{engine: Postgres})

	if _, err := r.Decode("mongodb", map[string]any{"host": "h"}); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("unknown engine: %v", err)
	}
	if _, err := r.Decode("oracle", map[string]any{"host": "h"}); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("unregistered engine: %v", err)
	}
	if _, err := r.Decode("postgres", map[string]any{"host": "h"}); err != nil {
		t.Errorf("registered engine: %v", err)
	}

	_, err := r.Open(context.Background(), "k", "postgres", map[string]any{}, model.PoolConfig{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Open with invalid config: %v", err)
	}
	if len(r.Keys()) != 0 {
		t.Error("failed open must not register a pool")
	}

	if got := r.Engines(); len(got) != 1 || got[0] != Postgres {
		t.Errorf("Engines() = %v", got)
	}
}

func TestRegisterPanicsOnUnknownEngine(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRegistry().Register(fakeConnector{engine: "cassandra"})
}

func TestCloseUnknownKey(t *testing.T) {
	if err := NewRegistry().Close("nope"); err != nil {
		t.Errorf("Close unknown = %v", err)
	}
}
