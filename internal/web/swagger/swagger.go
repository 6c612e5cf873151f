// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package swagger serves the embedded OpenAPI document and a Swagger UI page.
package swagger

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/tvarchive/internal/buildinfo"
	"github.com/autobrr/tvarchive/pkg/httphelpers"
)

//go:embed openapi.yaml
var openapiYAML []byte

var (
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
)

// GetOpenAPISpec returns the raw YAML document.
func GetOpenAPISpec() ([]byte, error) {
	if len(openapiYAML) == 0 {
		return nil, fmt.Errorf("openapi spec not embedded")
	}
	return openapiYAML, nil
}

// GetOpenAPIJSON returns the document converted to JSON with the running
// version filled in.
func GetOpenAPIJSON() ([]byte, error) {
	jsonOnce.Do(func() {
		var doc map[string]any
		if jsonErr = yaml.Unmarshal(openapiYAML, &doc); jsonErr != nil {
			return
		}
		if info, ok := doc["info"].(map[string]any); ok {
			info["version"] = buildinfo.Version
		}
		jsonSpec, jsonErr = json.Marshal(doc)
	})
	return jsonSpec, jsonErr
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>tvarchive API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({ url: "{{.SpecURL}}", dom_id: "#swagger-ui", withCredentials: true });
  </script>
</body>
</html>
`))

type Handler struct {
	specURL string
}

// NewHandler builds the docs handler for an API mounted under basePath.
func NewHandler(basePath string) *Handler {
	return &Handler{specURL: httphelpers.JoinBasePath(httphelpers.NormalizeBasePath(basePath), "api/openapi.json")}
}

// RegisterRoutes mounts /openapi.json and /docs on the API router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/openapi.json", h.ServeSpec)
	r.Get("/docs", h.ServeDocs)
}

func (h *Handler) ServeSpec(w http.ResponseWriter, _ *http.Request) {
	spec, err := GetOpenAPIJSON()
	if err != nil {
		http.Error(w, "openapi spec unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

func (h *Handler) ServeDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = docsPage.Execute(w, struct{ SpecURL string }{SpecURL: h.specURL})
}
