package handler

import (
	"log/slog"
	"net/http"

	"sigs.k8s.io/yaml"

	"github.com/brinkadata/brinkadata-platform/internal/api/middleware"
	"github.com/brinkadata/brinkadata-platform/internal/api/response"
)

// OpenAPIHandler serves the OpenAPI document as JSON.
type OpenAPIHandler struct {
	jsonSpec []byte
	err      error
}

// NewOpenAPIHandler converts the YAML document to JSON once, at construction.
// A conversion error is logged and reported on every request.
func NewOpenAPIHandler(yamlSpec []byte) *OpenAPIHandler {
	jsonSpec, err := yaml.YAMLToJSON(yamlSpec)
	if err != nil {
		slog.Error("failed to convert OpenAPI spec to JSON", "error", err)
	}
	return &OpenAPIHandler{jsonSpec: jsonSpec, err: err}
}

// ServeHTTP writes the converted document.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.err != nil {
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to convert OpenAPI spec", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.jsonSpec); err != nil {
		slog.Error("failed to write OpenAPI spec response", "error", err)
	}
}
