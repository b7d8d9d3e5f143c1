package handler

import (
	"net/http"

	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/openapi"
	"github.com/sluicehq/sluice/internal/service"
)

// OpenAPIHandler serves the OpenAPI 3.1 document for the running instance.
// The document is generated per request so that the oauth2 scopes reflect the
// tenant's current catalog.
type OpenAPIHandler struct {
	dir      *service.Directory
	registry *connector.Registry
	version  string
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(dir *service.Directory, registry *connector.Registry, version string) *OpenAPIHandler {
	return &OpenAPIHandler{
		dir:      dir,
		registry: registry,
		version:  version,
	}
}

// ServeSpec writes the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.dir.ListScopes(r.Context(), requestTenant(r))
	if err != nil {
		writeServiceError(w, err, "Failed to list scopes")
		return
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	doc := openapi.Generate(openapi.Options{
		Version: h.version,
		BaseURL: scheme + "://" + r.Host,
		Scopes:  scopes,
		Engines: openapi.EngineSchemas(h.registry),
	})
	writeJSON(w, http.StatusOK, doc)
}
