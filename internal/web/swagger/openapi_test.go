// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package swagger

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/tvarchive/internal/buildinfo"
)

func TestOpenAPISpec(t *testing.T) {
	if len(openapiYAML) == 0 {
		t.Fatal("OpenAPI spec is empty")
	}

	var spec map[string]any
	if err := yaml.Unmarshal(openapiYAML, &spec); err != nil {
		t.Fatalf("Failed to parse OpenAPI spec: %v", err)
	}

	for _, field := range []string{"openapi", "info", "paths"} {
		if spec[field] == nil {
			t.Errorf("Missing '%s' field", field)
		}
	}

	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		t.Fatal("'paths' is not a map")
	}

	totalEndpoints := 0
	for _, pathItem := range paths {
		if methods, ok := pathItem.(map[string]any); ok {
			for method := range methods {
				if method == "get" || method == "post" || method == "put" || method == "delete" || method == "patch" {
					totalEndpoints++
				}
			}
		}
	}
	t.Logf("OpenAPI spec documents %d endpoints", totalEndpoints)

	components, ok := spec["components"].(map[string]any)
	if !ok {
		t.Fatal("Missing or invalid 'components' section")
	}
	schemas, ok := components["schemas"].(map[string]any)
	if !ok {
		t.Fatal("Missing or invalid 'schemas' section")
	}

	requiredSchemas := []string{
		"User",
		"Series",
		"Season",
		"Subtitle",
		"Image",
		"Grouping",
		"Grant",
		"ChangeLogEntry",
		"BlacklistEntry",
		"TokenPair",
		"Error",
	}
	for _, schema := range requiredSchemas {
		if schemas[schema] == nil {
			t.Errorf("Missing schema: %s", schema)
		}
	}
}

func TestOpenAPISecuritySchemes(t *testing.T) {
	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(openapiYAML, &spec))

	components, ok := spec["components"].(map[string]any)
	require.True(t, ok)
	securitySchemes, ok := components["securitySchemes"].(map[string]any)
	require.True(t, ok, "Missing or invalid 'securitySchemes' section")

	for _, scheme := range []string{"SessionAuth", "BearerAuth"} {
		assert.NotNil(t, securitySchemes[scheme], "Missing security scheme: %s", scheme)
	}
}

func TestOpenAPIJSON(t *testing.T) {
	raw, err := GetOpenAPIJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	info := doc["info"].(map[string]any)
	assert.Equal(t, buildinfo.Version, info["version"])
}

func TestHandlerRoutes(t *testing.T) {
	h := NewHandler("/archive/")

	rec := httptest.NewRecorder()
	h.ServeSpec(rec, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.ServeDocs(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `url: "/archive/api/openapi.json"`)
}

// TestUploadFormFieldsDocumented verifies every form file field the image
// upload handler reads is documented in the multipart schema, and vice versa.
func TestUploadFormFieldsDocumented(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	handlerPath := filepath.Join(filepath.Dir(thisFile), "..", "..", "api", "handlers", "archives.go")

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, handlerPath, nil, 0)
	require.NoError(t, err)

	handlerFields := make(map[string]bool)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "UploadImage" {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) != 1 {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok || (sel.Sel.Name != "FormFile" && sel.Sel.Name != "FormValue") {
				return true
			}
			arg, ok := call.Args[0].(*ast.BasicLit)
			if !ok || arg.Kind != token.STRING {
				return true
			}
			handlerFields[arg.Value[1:len(arg.Value)-1]] = true
			return true
		})
	}
	require.NotEmpty(t, handlerFields, "no form fields found in UploadImage")

	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(openapiYAML, &spec))

	asMap := func(v any) map[string]any {
		t.Helper()
		m, ok := v.(map[string]any)
		require.True(t, ok, "expected map, got %T", v)
		return m
	}

	properties := asMap(
		asMap(asMap(asMap(asMap(asMap(asMap(
			asMap(spec["paths"])["/api/archives/tvseries/{seriesID}/images"],
		)["post"])["requestBody"])["content"])["multipart/form-data"])["schema"])["properties"],
	)

	specFields := make(map[string]bool)
	for name := range properties {
		specFields[name] = true
	}

	assert.Equal(t, handlerFields, specFields)
}
