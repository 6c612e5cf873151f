// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/config"
	"github.com/autobrr/tvarchive/internal/domain"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
	"github.com/autobrr/tvarchive/internal/services/audit"
	"github.com/autobrr/tvarchive/internal/services/blacklist"
	"github.com/autobrr/tvarchive/internal/testdb"
	"github.com/autobrr/tvarchive/internal/web/swagger"
)

type routeKey struct {
	Method string
	Path   string
}

func TestAllEndpointsDocumented(t *testing.T) {
	router, err := NewServer(newTestDependencies(t)).Handler()
	require.NoError(t, err)

	actualRoutes := collectRouterRoutes(t, router)
	documentedRoutes := loadDocumentedRoutes(t)

	undocumented := diffRoutes(actualRoutes, documentedRoutes)
	if len(undocumented) > 0 {
		t.Fatalf("found %d undocumented API endpoints:\n%s", len(undocumented), formatRoutes(undocumented))
	}

	missingHandlers := diffRoutes(documentedRoutes, actualRoutes)
	if len(missingHandlers) > 0 {
		t.Fatalf("found %d documented endpoints without handlers:\n%s", len(missingHandlers), formatRoutes(missingHandlers))
	}

	t.Logf("checked %d API routes registered in chi", len(actualRoutes))
}

// newTestDependencies returns placeholder services for building the router
// without serving requests.
func newTestDependencies(t *testing.T) *Dependencies {
	t.Helper()

	return &Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{MaxImageSize: 1 << 20},
		},
		AuthService:      &auth.Service{},
		SessionManager:   scs.New(),
		ArchiveService:   &archive.Service{},
		AuditService:     &audit.Service{},
		BlacklistService: &blacklist.Service{},
		UserIPStore:      &models.UserIPStore{},
	}
}

func collectRouterRoutes(t *testing.T, r chi.Routes) map[routeKey]struct{} {
	t.Helper()

	routes := make(map[routeKey]struct{})
	err := chi.Walk(r, func(method string, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		method = strings.ToUpper(method)
		if !isComparableMethod(method) {
			return nil
		}

		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			return nil
		}

		routes[routeKey{Method: method, Path: normalizedPath}] = struct{}{}
		return nil
	})
	require.NoError(t, err)

	return routes
}

func loadDocumentedRoutes(t *testing.T) map[routeKey]struct{} {
	t.Helper()

	specBytes, err := swagger.GetOpenAPISpec()
	require.NoError(t, err)
	require.NotEmpty(t, specBytes, "OpenAPI spec should be embedded")

	var spec map[string]any
	require.NoError(t, yaml.Unmarshal(specBytes, &spec))

	pathsNode, ok := spec["paths"].(map[string]any)
	require.True(t, ok, "OpenAPI spec missing paths section")

	routes := make(map[routeKey]struct{})
	for path, pathItem := range pathsNode {
		normalizedPath, ok := normalizeRoutePath(path)
		if !ok {
			continue
		}

		methods, ok := pathItem.(map[string]any)
		if !ok {
			continue
		}

		for method := range methods {
			upperMethod := strings.ToUpper(method)
			if !isComparableMethod(upperMethod) {
				continue
			}
			routes[routeKey{Method: upperMethod, Path: normalizedPath}] = struct{}{}
		}
	}

	return routes
}

func normalizeRoutePath(path string) (string, bool) {
	if path == "" || strings.Contains(path, "/*") {
		return "", false
	}

	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	if path == "/api/docs" || path == "/api/openapi.json" {
		return "", false
	}

	if !strings.HasPrefix(path, "/api") && path != "/health" {
		return "", false
	}

	return path, true
}

func isComparableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func diffRoutes(left, right map[routeKey]struct{}) []routeKey {
	diff := make([]routeKey, 0)
	for route := range left {
		if _, exists := right[route]; !exists {
			diff = append(diff, route)
		}
	}

	sort.Slice(diff, func(i, j int) bool {
		if diff[i].Path == diff[j].Path {
			return diff[i].Method < diff[j].Method
		}
		return diff[i].Path < diff[j].Path
	})

	return diff
}

func formatRoutes(routes []routeKey) string {
	lines := make([]string, len(routes))
	for i, route := range routes {
		lines[i] = fmt.Sprintf("%s %s", route.Method, route.Path)
	}
	return strings.Join(lines, "\n")
}

// testServer wires real services on a fresh database.
type testServer struct {
	handler http.Handler
	auth    *auth.Service
}

func newTestServer(t *testing.T, opts ...func(*domain.Config)) *testServer {
	t.Helper()

	db := testdb.Open(t)
	cfg := &domain.Config{
		MaxImageSize:       1 << 20,
		LoginFailureLimit:  3,
		LoginFailureWindow: 600,
		LoginFailureBan:    3600,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	authService := auth.NewService(db, auth.NewTokenIssuer("test-secret", time.Minute, time.Hour), nil)
	deps := &Dependencies{
		Config:           &config.AppConfig{Config: cfg},
		DB:               db,
		AuthService:      authService,
		SessionManager:   scs.New(),
		ArchiveService:   archive.NewService(db, archive.Options{ImageDir: t.TempDir(), MaxImageSize: cfg.MaxImageSize}),
		AuditService:     audit.NewService(db),
		BlacklistService: blacklist.NewService(db, nil, blacklist.PolicyFromConfig(cfg), nil),
		UserIPStore:      models.NewUserIPStore(db),
	}

	handler, err := NewServer(deps).Handler()
	require.NoError(t, err)

	return &testServer{handler: handler, auth: authService}
}

func (s *testServer) createUser(t *testing.T, username string, staff bool) {
	t.Helper()
	_, err := s.auth.CreateUser(context.Background(), username, username+"@example.com", "correct-horse-"+username, staff)
	require.NoError(t, err)
}

func (s *testServer) token(t *testing.T, username string) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/jwt/create", "", map[string]string{
		"username": username,
		"password": "correct-horse-" + username,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair.Access
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/health/readiness", "/api/version"} {
		rec := srv.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_ArchiveFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "alice", false)
	srv.createUser(t, "root", true)

	alice := srv.token(t, "alice")

	rec := srv.do(t, http.MethodGet, "/api/archives/tvseries", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/archives/tvseries", alice, map[string]any{
		"name":     "Breaking Bad",
		"imdb_url": "https://www.imdb.com/title/tt0903747/",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var series models.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))

	rec = srv.do(t, http.MethodPost, fmt.Sprintf("/api/archives/tvseries/%d/seasons", series.ID), alice, map[string]any{
		"season_number":      1,
		"number_of_episodes": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/archives/tvseries?name=breaking", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Count   int              `json:"count"`
		Results []*models.Series `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Results, 1)
	assert.Equal(t, 1, list.Results[0].SeasonsCount)

	t.Run("staff only administration", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/api/administration/logs", alice, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = srv.do(t, http.MethodGet, "/api/administration/logs?model=series", srv.token(t, "root"), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var page struct {
			Count   int                      `json:"count"`
			Results []*models.ChangeLogEntry `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Equal(t, 1, page.Count)
		assert.Equal(t, models.OpCreate, page.Results[0].Operation)
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/archives/tvseries", alice, map[string]any{
			"name":     "",
			"imdb_url": "https://example.com",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp struct {
			Fields map[string][]string `json:"fields"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Fields, "imdb_url")
	})

	t.Run("image upload and query token download", func(t *testing.T) {
		var poster bytes.Buffer
		require.NoError(t, png.Encode(&poster, image.NewGray(image.Rect(0, 0, 2, 2))))

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("image", "poster.png")
		require.NoError(t, err)
		_, err = part.Write(poster.Bytes())
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/archives/tvseries/%d/images", series.ID), &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+alice)
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var img models.Image
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &img))
		assert.Equal(t, "image/png", img.ContentType)

		rec = srv.do(t, http.MethodGet, fmt.Sprintf("/api/archives/tvseries/%d/images/%d?access_token=%s", series.ID, img.ID, alice), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, poster.Bytes(), rec.Body.Bytes())
	})
}

func TestServer_SessionLogin(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "alice", false)

	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-horse-alice",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/users/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)
}

func TestServer_FailedLoginsBanAddress(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "alice", false)

	attempt := 0
	login := func(password string) *httptest.ResponseRecorder {
		attempt++
		raw, _ := json.Marshal(map[string]string{"username": "alice", "password": password})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.RemoteAddr = "203.0.113.9:40100"
		// headers from an untrusted peer never pick the address
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", attempt))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", attempt))
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, login("wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login("wrong").Code)
	assert.Equal(t, http.StatusForbidden, login("wrong").Code)

	// banned before the credentials are even checked
	assert.Equal(t, http.StatusForbidden, login("correct-horse-alice").Code)

	// other addresses are unaffected
	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-horse-alice",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ForwardedAddressFromTrustedProxy(t *testing.T) {
	srv := newTestServer(t, func(cfg *domain.Config) {
		cfg.TrustedProxies = []string{"10.0.0.0/8"}
	})
	srv.createUser(t, "alice", false)

	login := func(peer, forwardedFor string) int {
		raw, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.RemoteAddr = peer
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// the client prepends a fake hop; the proxy appends the real one
	for range 2 {
		assert.Equal(t, http.StatusUnauthorized, login("10.0.0.2:5000", "192.0.2.50, 203.0.113.20"))
	}
	assert.Equal(t, http.StatusForbidden, login("10.0.0.2:5000", "192.0.2.51, 203.0.113.20"))

	// the proxy itself and the spoofed hop stay usable
	assert.Equal(t, http.StatusUnauthorized, login("10.0.0.2:5000", "192.0.2.50"))
	rec := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-horse-alice",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_DelegationPasswordGuessesAreCounted(t *testing.T) {
	srv := newTestServer(t)
	srv.createUser(t, "alice", false)
	srv.createUser(t, "bob", false)
	token := srv.token(t, "alice")

	guess := func(password string) *httptest.ResponseRecorder {
		return srv.do(t, http.MethodPost, "/api/auth/users/set_master", token, map[string]string{
			"username": "bob",
			"password": password,
		})
	}

	assert.Equal(t, http.StatusBadRequest, guess("guess-1").Code)
	assert.Equal(t, http.StatusBadRequest, guess("guess-2").Code)
	assert.Equal(t, http.StatusForbidden, guess("guess-3").Code)

	// the address is now banned for every route
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/api/auth/users/me", token, nil).Code)
}
