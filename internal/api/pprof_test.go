// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPprofServer(t *testing.T) {
	srv := NewPprofServer("127.0.0.1", 6060)
	require.Equal(t, "127.0.0.1:6060", srv.Addr)

	t.Run("index", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "goroutine")
	})

	t.Run("named profile", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/goroutine?debug=1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rates", func(t *testing.T) {
		defer runtime.SetMutexProfileFraction(0)

		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/pprof/rates/mutex?rate=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/rates", nil))
		assert.Contains(t, rec.Body.String(), "mutex fraction=5")

		rec = httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/pprof/rates/block?rate=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
