package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/sluicehq/sluice/internal/connector"
)

// fieldTypeToOpenAPI maps connector field types to OpenAPI type/format pairs.
var fieldTypeToOpenAPI = map[connector.FieldType]struct{ Type, Format string }{
	connector.String: {"string", ""},
	connector.Int:    {"integer", "int32"},
	connector.Bool:   {"boolean", ""},
	connector.Map:    {"object", ""},
}

// EngineConfigSchema describes an engine's connection config. Secret fields
// are write-only.
func EngineConfigSchema(s connector.Schema) *openapi3.SchemaRef {
	props := make(openapi3.Schemas, len(s))
	var required []string
	for _, f := range s {
		m, ok := fieldTypeToOpenAPI[f.Type]
		if !ok {
			m = fieldTypeToOpenAPI[connector.String]
		}
		schema := &openapi3.Schema{
			Type:        &openapi3.Types{m.Type},
			Format:      m.Format,
			Description: f.Description,
			Default:     f.Default,
			WriteOnly:   f.Secret,
		}
		if f.Secret && f.Type == connector.String {
			schema.Format = "password"
		}
		if f.Type == connector.Map {
			schema.AdditionalProperties = openapi3.AdditionalProperties{
				Schema: &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			}
		}
		props[f.Name] = &openapi3.SchemaRef{Value: schema}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	no := false
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:                 &openapi3.Types{"object"},
			Properties:           props,
			Required:             required,
			AdditionalProperties: openapi3.AdditionalProperties{Has: &no},
		},
	}
}

// EngineSchemas collects the config schema of every engine enabled in reg.
func EngineSchemas(reg *connector.Registry) map[connector.Engine]connector.Schema {
	out := make(map[connector.Engine]connector.Schema)
	for _, e := range reg.Engines() {
		c, err := reg.Connector(string(e))
		if err != nil {
			continue
		}
		out[e] = c.Schema()
	}
	return out
}
