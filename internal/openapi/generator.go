package openapi

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/model"
)

// Options are the inputs to Generate.
type Options struct {
	Title   string
	Version string
	BaseURL string
	// Scopes is the tenant's scope catalog, published as OAuth2 scopes.
	Scopes []model.Scope
	// Engines maps each enabled engine to its configuration schema.
	Engines map[connector.Engine]connector.Schema
}

// Generate builds the OpenAPI 3.1 document for the authorization and system
// endpoints.
func Generate(opts Options) *openapi3.T {
	if opts.Title == "" {
		opts.Title = "Sluice API"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       opts.Title,
			Description: "Token grants, revocation and platform administration.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	scopes := make(map[string]string, len(opts.Scopes))
	for _, s := range opts.Scopes {
		desc := s.Description
		if desc == "" {
			desc = s.Name
		}
		scopes[s.Name] = desc
	}
	doc.Components.SecuritySchemes["oauth2"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "oauth2",
			Flows: &openapi3.OAuthFlows{
				ClientCredentials: &openapi3.OAuthFlow{
					TokenURL:   "/authorization/token",
					RefreshURL: "/authorization/token",
					Scopes:     scopes,
				},
				Password: &openapi3.OAuthFlow{
					TokenURL:   "/authorization/token",
					RefreshURL: "/authorization/token",
					Scopes:     scopes,
				},
			},
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}

	addSharedSchemas(doc, opts.Engines)

	doc.Paths = openapi3.NewPaths()
	addAuthorizationPaths(doc)
	addSystemPaths(doc)
	addConsumerPaths(doc)
	return doc
}

// ─── Shared Schemas ─────────────────────────────────────────────────────────

func addSharedSchemas(doc *openapi3.T, engines map[connector.Engine]connector.Schema) {
	s := doc.Components.Schemas

	s["ErrorResponse"] = objectRef(openapi3.Schemas{
		"error": objectRef(openapi3.Schemas{
			"code":    typed("integer", "int32"),
			"message": typed("string", ""),
			"context": typed("object", ""),
		}),
	})
	s["OAuthError"] = objectRef(openapi3.Schemas{
		"error": enumRef("invalid_client", "invalid_scope", "invalid_grant", "invalid_request",
			"unsupported_grant_type", "temporarily_unavailable", "server_error"),
		"error_description": typed("string", ""),
	}, "error")
	s["TokenRequest"] = objectRef(openapi3.Schemas{
		"grant_type":    enumRef("client_credentials", "password", "refresh_token"),
		"client_id":     typed("string", ""),
		"client_secret": typed("string", ""),
		"username":      typed("string", ""),
		"password":      typed("string", "password"),
		"refresh_token": typed("string", ""),
		"scope":         described(typed("string", ""), "Comma-separated scope names. Empty requests every scope the user holds."),
	})
	s["TokenResponse"] = objectRef(openapi3.Schemas{
		"access_token":  typed("string", ""),
		"token_type":    enumRef("bearer"),
		"expires_in":    described(typed("integer", "int32"), "Lifetime of the access token in seconds."),
		"refresh_token": typed("string", ""),
		"scope":         described(typed("string", ""), "Granted scopes, comma-separated, in catalog order."),
	}, "access_token", "token_type", "expires_in", "refresh_token", "scope")
	s["RevokeRequest"] = objectRef(openapi3.Schemas{
		"token":         typed("string", ""),
		"client_id":     typed("string", ""),
		"client_secret": typed("string", ""),
	}, "token")
	s["AssertionResponse"] = objectRef(openapi3.Schemas{
		"assertion":  described(typed("string", ""), "HS256 signed JWT."),
		"token_type": typed("string", ""),
		"expires_in": typed("integer", "int32"),
	})

	s["App"] = objectRef(openapi3.Schemas{
		"id":         typed("integer", "int64"),
		"user_id":    typed("integer", "int64"),
		"status":     enumIntRef(model.AppStatusActive, model.AppStatusInactive, model.AppStatusDeleted),
		"name":       typed("string", ""),
		"url":        typed("string", "uri"),
		"app_key":    typed("string", ""),
		"created_at": typed("string", "date-time"),
	})
	s["NewApp"] = objectRef(openapi3.Schemas{
		"name":    typed("string", ""),
		"url":     typed("string", "uri"),
		"user_id": typed("integer", "int64"),
		"scopes":  stringArray(),
	}, "name", "user_id")
	s["AppCredentials"] = objectRef(openapi3.Schemas{
		"app":        openapi3.NewSchemaRef("#/components/schemas/App", nil),
		"app_key":    typed("string", ""),
		"app_secret": described(typed("string", ""), "Shown once. Only a digest is stored."),
	})
	s["User"] = objectRef(openapi3.Schemas{
		"id":         typed("integer", "int64"),
		"status":     enumIntRef(model.UserStatusActive, model.UserStatusDisabled),
		"name":       typed("string", ""),
		"email":      typed("string", "email"),
		"created_at": typed("string", "date-time"),
	})
	s["NewUser"] = objectRef(openapi3.Schemas{
		"name":     typed("string", ""),
		"email":    typed("string", "email"),
		"password": typed("string", "password"),
		"scopes":   stringArray(),
	}, "name", "password")
	s["Scope"] = objectRef(openapi3.Schemas{
		"id":          typed("integer", "int64"),
		"name":        typed("string", ""),
		"description": typed("string", ""),
		"category":    typed("string", ""),
	})
	s["ScopeList"] = objectRef(openapi3.Schemas{"scopes": stringArray()}, "scopes")
	s["Token"] = objectRef(openapi3.Schemas{
		"id":                 typed("integer", "int64"),
		"app_id":             typed("integer", "int64"),
		"user_id":            typed("integer", "int64"),
		"name":               typed("string", ""),
		"status":             enumIntRef(model.TokenStatusActive, model.TokenStatusRevoked),
		"scope":              typed("string", ""),
		"ip":                 typed("string", ""),
		"issued_at":          typed("string", "date-time"),
		"expires_at":         typed("string", "date-time"),
		"refresh_expires_at": typed("string", "date-time"),
	})
	s["MintRequest"] = objectRef(openapi3.Schemas{
		"app_id":  typed("integer", "int64"),
		"user_id": typed("integer", "int64"),
		"name":    typed("string", ""),
		"scope":   described(typed("string", ""), "Comma-separated scope names. Empty requests every scope the user and app share."),
		"expire":  expireSchema(),
	}, "user_id")
	s["ConsumerTokenRequest"] = objectRef(openapi3.Schemas{
		"name":   typed("string", ""),
		"scope":  described(stringArray(), "Limited to the scopes of the calling token."),
		"expire": expireSchema(),
	}, "name")
	s["Connection"] = objectRef(openapi3.Schemas{
		"id":         typed("integer", "int64"),
		"name":       typed("string", ""),
		"class":      engineEnum(engines),
		"pool":       poolSchema(),
		"created_at": typed("string", "date-time"),
		"updated_at": typed("string", "date-time"),
	})
	s["ConnectionInput"] = connectionInputSchema(doc, engines)
}

// ─── Authorization Paths ────────────────────────────────────────────────────

func addAuthorizationPaths(doc *openapi3.T) {
	tokenBody := formOrJSONBody("#/components/schemas/TokenRequest", "Grant parameters. Client credentials may instead be sent with HTTP Basic.")
	doc.Paths.Set("/authorization/token", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"authorization"},
			Summary:     "Issue an access token",
			OperationID: "issueToken",
			RequestBody: tokenBody,
			Security:    &openapi3.SecurityRequirements{},
			Responses:   oauthResponses("200", "Token issued", openapi3.NewSchemaRef("#/components/schemas/TokenResponse", nil)),
		},
	})

	doc.Paths.Set("/authorization/revoke", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"authorization"},
			Summary:     "Revoke an access or refresh token",
			OperationID: "revokeToken",
			RequestBody: formOrJSONBody("#/components/schemas/RevokeRequest", "Token to revoke."),
			Security:    &openapi3.SecurityRequirements{},
			Responses:   oauthResponses("200", "Revoked, or the token was unknown", nil),
		},
	})

	doc.Paths.Set("/authorization/assertion", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"authorization"},
			Summary:     "Exchange the bearer token for a signed assertion",
			OperationID: "createAssertion",
			Security:    &openapi3.SecurityRequirements{{"bearerAuth": {}}},
			Responses:   oauthResponses("200", "Assertion issued", openapi3.NewSchemaRef("#/components/schemas/AssertionResponse", nil)),
		},
	})
}

// ─── System Paths ───────────────────────────────────────────────────────────

const systemPrefix = "/api/v1/system"

func addSystemPaths(doc *openapi3.T) {
	security := &openapi3.SecurityRequirements{{"oauth2": {"backend"}}, {"bearerAuth": {}}}
	op := func(summary, id string, params openapi3.Parameters, body *openapi3.RequestBodyRef, responses *openapi3.Responses) *openapi3.Operation {
		return &openapi3.Operation{
			Tags:        []string{"system"},
			Summary:     summary,
			OperationID: id,
			Parameters:  params,
			RequestBody: body,
			Security:    security,
			Responses:   responses,
		}
	}
	ref := func(name string) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
	}
	ok := func(desc string) *openapi3.Responses {
		return newResponses("200", desc, typed("object", ""))
	}

	doc.Paths.Set(systemPrefix+"/app", &openapi3.PathItem{
		Get:  op("List apps", "listApps", nil, nil, newResponses("200", "Apps", listOf(ref("App")))),
		Post: op("Create an app", "createApp", nil, jsonBody(ref("NewApp")), newResponses("201", "App created; the secret is shown once", ref("AppCredentials"))),
	})
	doc.Paths.Set(systemPrefix+"/app/{appId}", &openapi3.PathItem{
		Get:    op("Get an app", "getApp", idParam("appId"), nil, ok("App and its scopes")),
		Delete: op("Delete an app", "deleteApp", idParam("appId"), nil, ok("App deleted")),
	})
	doc.Paths.Set(systemPrefix+"/app/{appId}/scope", &openapi3.PathItem{
		Put: op("Replace an app's scopes", "setAppScopes", idParam("appId"), jsonBody(ref("ScopeList")), ok("Scopes assigned")),
	})

	doc.Paths.Set(systemPrefix+"/user", &openapi3.PathItem{
		Get:  op("List users", "listUsers", nil, nil, newResponses("200", "Users", listOf(ref("User")))),
		Post: op("Create a user", "createUser", nil, jsonBody(ref("NewUser")), newResponses("201", "User created", ref("User"))),
	})
	doc.Paths.Set(systemPrefix+"/user/{userId}/scope", &openapi3.PathItem{
		Put: op("Replace a user's scopes", "setUserScopes", idParam("userId"), jsonBody(ref("ScopeList")), ok("Scopes granted")),
	})

	doc.Paths.Set(systemPrefix+"/scope", &openapi3.PathItem{
		Get:  op("List scopes", "listScopes", nil, nil, newResponses("200", "Scope catalog", listOf(ref("Scope")))),
		Post: op("Create a scope", "createScope", nil, jsonBody(ref("Scope")), newResponses("201", "Scope created", ref("Scope"))),
	})

	doc.Paths.Set(systemPrefix+"/connection", &openapi3.PathItem{
		Get:  op("List connections", "listConnections", nil, nil, newResponses("200", "Connections", listOf(ref("Connection")))),
		Post: op("Create or replace a connection", "saveConnection", nil, jsonBody(ref("ConnectionInput")), newResponses("200", "Connection saved", ref("Connection"))),
	})
	doc.Paths.Set(systemPrefix+"/connection/{name}", &openapi3.PathItem{
		Get:    op("Get a connection with secrets masked", "getConnection", nameParam(), nil, ok("Connection")),
		Delete: op("Delete a connection", "deleteConnection", nameParam(), nil, ok("Connection deleted")),
	})
	doc.Paths.Set(systemPrefix+"/connection/{name}/test", &openapi3.PathItem{
		Post: op("Test a connection", "testConnection", nameParam(), nil, ok("Test result")),
	})

	doc.Paths.Set(systemPrefix+"/token", &openapi3.PathItem{
		Get:  op("List issued tokens", "listTokens", tokenFilterParameters(), nil, newResponses("200", "Tokens, newest first", listOf(ref("Token")))),
		Post: op("Mint a token for a user", "mintToken", nil, jsonBody(ref("MintRequest")), newResponses("201", "Token minted", ref("TokenResponse"))),
	})
	doc.Paths.Set(systemPrefix+"/token/{tokenId}", &openapi3.PathItem{
		Get:    op("Get a token record", "getToken", idParam("tokenId"), nil, newResponses("200", "Token", ref("Token"))),
		Delete: op("Revoke a token", "revokeToken", idParam("tokenId"), nil, ok("Token revoked")),
	})
}

// ─── Consumer Paths ─────────────────────────────────────────────────────────

func addConsumerPaths(doc *openapi3.T) {
	security := &openapi3.SecurityRequirements{{"bearerAuth": {}}}
	ref := func(name string) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
	}
	doc.Paths.Set("/consumer/token", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"consumer"},
			Summary:     "List the caller's tokens",
			OperationID: "listOwnTokens",
			Security:    security,
			Responses:   newResponses("200", "Tokens of the authenticated user, newest first", listOf(ref("Token"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"consumer"},
			Summary:     "Create a personal token",
			OperationID: "createOwnToken",
			RequestBody: jsonBody(ref("ConsumerTokenRequest")),
			Security:    security,
			Responses:   newResponses("201", "Token created", ref("TokenResponse")),
		},
	})
}

// ─── Parameter Builders ─────────────────────────────────────────────────────

func idParam(name string) openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(name).
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
		},
	}
}

func nameParam() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("name").
				WithDescription("Connection name.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}
}

// tokenFilterParameters returns the query parameters accepted by the token
// listing.
func tokenFilterParameters() openapi3.Parameters {
	intParam := func(name, desc string) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(name).
				WithDescription(desc).
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
		}
	}
	strParam := func(name, desc string) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(name).
				WithDescription(desc).
				WithSchema(openapi3.NewStringSchema()),
		}
	}
	return openapi3.Parameters{
		intParam("app_id", "Only tokens issued to this app."),
		intParam("user_id", "Only tokens issued for this user."),
		intParam("status", "1 active, 2 revoked."),
		strParam("scope", "Substring of the scope list."),
		strParam("ip", "Originating address."),
		intParam("limit", "Maximum number of records to return."),
		intParam("offset", "Number of records to skip."),
		&openapi3.ParameterRef{
			Value: func() *openapi3.Parameter {
				p := openapi3.NewQueryParameter("active")
				p.Description = "Shorthand for status=1 (\"true\" to enable)."
				p.Schema = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
				return p
			}(),
		},
	}
}

// ─── Body and Response Helpers ──────────────────────────────────────────────

func jsonBody(schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Required: true,
			Content:  openapi3.NewContentWithJSONSchemaRef(schema),
		},
	}
}

func formOrJSONBody(ref, description string) *openapi3.RequestBodyRef {
	schema := openapi3.NewSchemaRef(ref, nil)
	content := openapi3.NewContentWithFormDataSchemaRef(schema)
	content["application/x-www-form-urlencoded"] = content["multipart/form-data"]
	delete(content, "multipart/form-data")
	content["application/json"] = openapi3.NewMediaType().WithSchemaRef(schema)
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     content,
		},
	}
}

// oauthResponses builds the responses of an /authorization endpoint, whose
// failures use the OAuth2 error body.
func oauthResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	success := &openapi3.Response{Description: &description}
	if schema != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(statusCode, &openapi3.ResponseRef{Value: success})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/OAuthError", nil)
	for _, e := range []struct{ code, desc string }{
		{"400", "Invalid request, grant or scope"},
		{"401", "Client authentication failed"},
		{"429", "Too many token requests"},
		{"500", "Internal server error"},
		{"503", "Temporarily unavailable"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// newResponses builds a Responses map with a success response and standard error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Unauthorized"},
		{"403", "Missing scope or plan quota exceeded"},
		{"404", "Not found"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// listOf wraps an item schema in the list envelope.
func listOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return objectRef(openapi3.Schemas{
		"resource": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: item,
			},
		},
		"meta": metaSchema(),
	})
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return objectRef(openapi3.Schemas{
		"count":  described(typed("integer", "int32"), "Number of records in this page."),
		"total":  described(typed("integer", "int64"), "Total number of records matching the query."),
		"limit":  described(typed("integer", "int32"), "Maximum records returned per page."),
		"offset": described(typed("integer", "int32"), "Number of records skipped."),
	})
}

// ─── Schema Helpers ─────────────────────────────────────────────────────────

func expireSchema() *openapi3.SchemaRef {
	return described(typed("string", ""), "RFC 3339 expiry time, or a lifetime such as P1M, P2D or \"2 days\". Empty uses the default lifetime.")
}

func typed(typ, format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}, Format: format}}
}

func described(ref *openapi3.SchemaRef, desc string) *openapi3.SchemaRef {
	ref.Value.Description = desc
	return ref
}

func objectRef(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

func stringArray() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: typed("string", ""),
		},
	}
}

func enumRef(values ...string) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: enum}}
}

func enumIntRef(values ...int) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Enum: enum}}
}

func poolSchema() *openapi3.SchemaRef {
	return objectRef(openapi3.Schemas{
		"max_open_conns":     typed("integer", "int32"),
		"max_idle_conns":     typed("integer", "int32"),
		"conn_max_lifetime":  described(typed("integer", "int64"), "Nanoseconds."),
		"conn_max_idle_time": described(typed("integer", "int64"), "Nanoseconds."),
	})
}

func sortedEngines(engines map[connector.Engine]connector.Schema) []connector.Engine {
	out := make([]connector.Engine, 0, len(engines))
	for e := range engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func engineEnum(engines map[connector.Engine]connector.Schema) *openapi3.SchemaRef {
	names := make([]string, 0, len(engines))
	for _, e := range sortedEngines(engines) {
		names = append(names, string(e))
	}
	return enumRef(names...)
}

// connectionInputSchema is a oneOf over the enabled engines, each variant
// pinning class and describing that engine's config fields.
func connectionInputSchema(doc *openapi3.T, engines map[connector.Engine]connector.Schema) *openapi3.SchemaRef {
	var variants openapi3.SchemaRefs
	for _, e := range sortedEngines(engines) {
		name := schemaName(string(e)) + "ConnectionInput"
		ref := "#/components/schemas/" + name
		doc.Components.Schemas[name] = objectRef(openapi3.Schemas{
			"name":   typed("string", ""),
			"class":  enumRef(string(e)),
			"config": EngineConfigSchema(engines[e]),
			"pool":   poolSchema(),
		}, "name", "class", "config")
		variants = append(variants, openapi3.NewSchemaRef(ref, nil))
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			OneOf: variants,
			Discriminator: &openapi3.Discriminator{
				PropertyName: "class",
			},
		},
	}
}

// schemaName returns a PascalCase component name.
func schemaName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upper = true
		case upper:
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
