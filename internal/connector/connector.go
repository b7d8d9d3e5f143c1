// Package connector turns a decrypted connection configuration into an open
// database pool. Configurations are decoded through a per-engine field schema;
// unknown engines, unknown fields, missing required fields and wrongly typed
// values are rejected before any driver is touched.
package connector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Engine names a supported database engine. It is stored as a connection's
// class.
type Engine string

const (
	Postgres  Engine = "postgres"
	MySQL     Engine = "mysql"
	SQLServer Engine = "sqlserver"
	Oracle    Engine = "oracle"
	Snowflake Engine = "snowflake"
	SQLite    Engine = "sqlite"
)

// Engines lists every engine type a connection may declare.
var Engines = []Engine{Postgres, MySQL, SQLServer, Oracle, Snowflake, SQLite}

// ParseEngine validates a class name against the enumerated engine set.
func ParseEngine(class string) (Engine, error) {
	for _, e := range Engines {
		if string(e) == class {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEngine, class)
}

var (
	// ErrUnknownEngine is returned for a class outside the enumerated set.
	ErrUnknownEngine = errors.New("unknown connection engine")
	// ErrInvalidConfig is returned when a configuration does not match the
	// engine's schema.
	ErrInvalidConfig = errors.New("invalid connection config")
)

// FieldType is the expected type of a configuration value.
type FieldType int

const (
	String FieldType = iota
	Int
	Bool
	Map // string-to-string options
)

func (t FieldType) String() string {
	switch t {
	case Int:
		return "integer"
	case Bool:
		return "boolean"
	case Map:
		return "object"
	default:
		return "string"
	}
}

// Field describes one configuration key.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Secret      bool
	Default     any
	Description string
}

// Schema is the ordered set of fields an engine accepts.
type Schema []Field

// Decode validates raw against the schema and returns the typed config.
// Defaults are applied for absent optional fields.
func (s Schema) Decode(engine Engine, raw map[string]any) (Config, error) {
	known := make(map[string]Field, len(s))
	for _, f := range s {
		known[f.Name] = f
	}
	var unknown []string
	for k := range raw {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Config{}, fmt.Errorf("%w: %s does not accept %s", ErrInvalidConfig, engine, strings.Join(unknown, ", "))
	}

	values := make(map[string]any, len(s))
	for _, f := range s {
		v, present := raw[f.Name]
		if !present || v == nil || v == "" {
			if f.Required {
				return Config{}, fmt.Errorf("%w: %s requires %q", ErrInvalidConfig, engine, f.Name)
			}
			if f.Default != nil {
				values[f.Name] = f.Default
			}
			continue
		}
		cv, err := coerce(f.Type, v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: field %q: %v", ErrInvalidConfig, f.Name, err)
		}
		values[f.Name] = cv
	}
	return Config{Engine: engine, values: values}, nil
}

func coerce(t FieldType, v any) (any, error) {
	switch t {
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case Int:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return int(i), nil
		case string:
			i, err := strconv.Atoi(n)
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected integer, got %T", v)
	case Bool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)
	case Map:
		switch m := v.(type) {
		case map[string]string:
			return m, nil
		case map[string]any:
			out := make(map[string]string, len(m))
			for k, mv := range m {
				switch x := mv.(type) {
				case string:
					out[k] = x
				case bool, float64, int:
					out[k] = fmt.Sprint(x)
				default:
					return nil, fmt.Errorf("option %q: unsupported %T", k, mv)
				}
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return nil, fmt.Errorf("unsupported field type %d", t)
}

// Config is a schema-validated connection configuration.
type Config struct {
	Engine Engine
	values map[string]any
}

// String returns a string field, "" when unset.
func (c Config) String(name string) string {
	s, _ := c.values[name].(string)
	return s
}

// Int returns an integer field, 0 when unset.
func (c Config) Int(name string) int {
	n, _ := c.values[name].(int)
	return n
}

// Bool returns a boolean field, false when unset.
func (c Config) Bool(name string) bool {
	b, _ := c.values[name].(bool)
	return b
}

// Options returns a map field, nil when unset.
func (c Config) Options(name string) map[string]string {
	m, _ := c.values[name].(map[string]string)
	return m
}

// Has reports whether a field has a value after defaults.
func (c Config) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Connector knows how to validate and address one engine.
type Connector interface {
	Engine() Engine
	// DriverName is the database/sql driver the DSN is opened with.
	DriverName() string
	Schema() Schema
	// DSN builds the driver connection string from a decoded config.
	DSN(cfg Config) (string, error)
}
