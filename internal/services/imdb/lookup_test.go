// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package imdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/models"
)

const seriesPage = `<!DOCTYPE html><html><head>
<title>Breaking Bad (TV Series 2008–2013) - IMDb</title>
<meta property="og:title" content="Breaking Bad (TV Series 2008–2013) ⭐ 9.5 | Crime, Drama, Thriller">
</head><body><h1 data-testid="hero__pageTitle"><span>Breaking Bad</span></h1></body></html>`

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		want     string
		start    string
		end      string
		finished bool
	}{
		{name: "og title", html: seriesPage, want: "Breaking Bad", start: "2008", end: "2013", finished: true},
		{
			name:  "running series",
			html:  `<html><head><meta property="og:title" content="The Bear (TV Series 2022– ) ⭐ 8.5"></head></html>`,
			want:  "The Bear",
			start: "2022",
		},
		{
			name: "heading fallback",
			html: `<html><body><h1 data-testid="hero__pageTitle">Dark</h1></body></html>`,
			want: "Dark",
		},
		{
			name:  "title tag fallback",
			html:  `<html><head><title>Fargo (2014) - IMDb</title></head></html>`,
			want:  "Fargo",
			start: "2014",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			title, err := Parse([]byte(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, title.Name)
			assert.Equal(t, tt.start, title.StartYear)
			assert.Equal(t, tt.end, title.EndYear)
			assert.Equal(t, tt.finished, title.IsFinished)
		})
	}

	_, err := Parse([]byte(`<html><body><p>nothing</p></body></html>`))
	assert.ErrorIs(t, err, ErrTitleNotFound)
}

func TestClient_Lookup(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/title/tt0903747/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(seriesPage))
	}))
	defer srv.Close()

	client := NewClient()
	client.BaseURL = srv.URL

	title, err := client.Lookup(context.Background(), "http://imdb.com/title/tt0903747")
	require.NoError(t, err)
	assert.Equal(t, "https://www.imdb.com/title/tt0903747/", title.URL)
	assert.Equal(t, "Breaking Bad", title.Name)

	// served from cache
	_, err = client.Lookup(context.Background(), "https://www.imdb.com/title/tt0903747/")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	_, err = client.Lookup(context.Background(), "https://www.imdb.com/title/tt0000001/")
	assert.ErrorIs(t, err, ErrTitleNotFound)

	_, err = client.Lookup(context.Background(), "https://example.com/")
	assert.True(t, models.IsValidationError(err))
}

func TestClient_LookupRetries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{name: "server error is retried", status: http.StatusServiceUnavailable, wantHits: 2},
		{name: "forbidden is not retried", status: http.StatusForbidden, wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := NewClient()
			client.BaseURL = srv.URL

			_, err := client.Lookup(context.Background(), "https://www.imdb.com/title/tt0903747/")
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrTitleNotFound)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}
