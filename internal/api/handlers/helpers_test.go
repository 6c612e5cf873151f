// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	RespondJSON(w, http.StatusCreated, newListResponse([]string{"Dark"}, 1, PaginationParams{Limit: 10}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count":1,"next_offset":null,"results":["Dark"]}`, w.Body.String())

	w = httptest.NewRecorder()
	RespondJSON(w, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = httptest.NewRecorder()
	assert.NotPanics(t, func() { RespondJSON(w, http.StatusOK, map[string]any{"fn": func() {}}) })
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	RespondError(w, http.StatusUnauthorized, "Authentication credentials were not provided")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Authentication credentials were not provided", resp.Error)
	assert.Nil(t, resp.Fields)
}

func TestParseSeriesAndSeasonIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path       string
		wantSeries int
		wantSeason int
		wantStatus int
	}{
		{path: "/archives/tvseries/12/seasons/3", wantSeries: 12, wantSeason: 3, wantStatus: http.StatusOK},
		{path: "/archives/tvseries/abc/seasons/3", wantStatus: http.StatusBadRequest},
		{path: "/archives/tvseries/0/seasons/3", wantStatus: http.StatusBadRequest},
		{path: "/archives/tvseries/12/seasons/-1", wantSeries: 12, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			var gotSeries, gotSeason int
			r := chi.NewRouter()
			r.Get("/archives/tvseries/{seriesID}/seasons/{seasonID}", func(w http.ResponseWriter, r *http.Request) {
				var ok bool
				if gotSeries, ok = ParseSeriesID(w, r); !ok {
					return
				}
				if gotSeason, ok = ParseSeasonID(w, r); !ok {
					return
				}
				w.WriteHeader(http.StatusOK)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSeries, gotSeries)
			assert.Equal(t, tt.wantSeason, gotSeason)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	var update models.SeriesUpdate
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"name":"Severance","is_finished":true}`))
	require.True(t, DecodeJSON(httptest.NewRecorder(), req, &update))
	require.NotNil(t, update.Name)
	assert.Equal(t, "Severance", *update.Name)

	for _, body := range []string{"", "{invalid}"} {
		w := httptest.NewRecorder()
		assert.False(t, DecodeJSON(w, httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body)), &update), body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestParsePagination(t *testing.T) {
	t.Parallel()

	tests := map[string]PaginationParams{
		"":                      {Limit: 20},
		"?limit=50&offset=10":   {Limit: 50, Offset: 10},
		"?limit=500":            {Limit: 100},
		"?limit=abc&offset=abc": {Limit: 20},
		"?limit=0&offset=-5":    {Limit: 20},
		"?limit=-5&offset=40":   {Limit: 20, Offset: 40},
	}

	for query, want := range tests {
		got := ParsePagination(httptest.NewRequest(http.MethodGet, "/archives/tvseries"+query, nil), 20, 100)
		assert.Equal(t, want, got, query)
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantFields map[string][]string
	}{
		{
			name:       "validation error gives 400 with fields",
			err:        models.FieldError("name", "this field is required"),
			wantStatus: http.StatusBadRequest,
			wantError:  "Validation failed",
			wantFields: map[string][]string{"name": {"this field is required"}},
		},
		{
			name:       "wrapped not found gives 404",
			err:        fmt.Errorf("load: %w", models.ErrSeriesNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "load: series not found",
		},
		{
			name:       "permission denied gives 403",
			err:        archive.ErrPermissionDenied,
			wantStatus: http.StatusForbidden,
			wantError:  archive.ErrPermissionDenied.Error(),
		},
		{
			name:       "unique violation gives 409",
			err:        models.ErrImdbURLTaken,
			wantStatus: http.StatusConflict,
			wantError:  models.ErrImdbURLTaken.Error(),
		},
		{
			name:       "other error gives 500",
			err:        sql.ErrConnDone,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to load series",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			RespondServiceError(w, tt.err, "Failed to load series")

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantFields, resp.Fields)
		})
	}
}

func TestNewListResponse(t *testing.T) {
	t.Parallel()

	full := newListResponse([]int{1, 2}, 5, PaginationParams{Limit: 2, Offset: 0})
	require.NotNil(t, full.NextOffset)
	assert.Equal(t, 2, *full.NextOffset)

	last := newListResponse([]int{5}, 5, PaginationParams{Limit: 2, Offset: 4})
	assert.Nil(t, last.NextOffset)

	empty := newListResponse[int](nil, 0, PaginationParams{Limit: 2})
	assert.NotNil(t, empty.Results)
	assert.Nil(t, empty.NextOffset)
}

func TestParseBoolQuery(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]bool{"true": true, "True": true, "1": true, "false": false, "False": false} {
		req := httptest.NewRequest(http.MethodGet, "/?is_finished="+raw, nil)
		got, err := parseBoolQuery(req, "is_finished")
		require.NoError(t, err, raw)
		require.NotNil(t, got, raw)
		assert.Equal(t, want, *got, raw)
	}

	got, err := parseBoolQuery(httptest.NewRequest(http.MethodGet, "/", nil), "is_finished")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseBoolQuery(httptest.NewRequest(http.MethodGet, "/?is_finished=maybe", nil), "is_finished")
	assert.True(t, models.IsValidationError(err))
}
