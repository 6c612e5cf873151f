// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/tvarchive/internal/api/ctxkeys"
	"github.com/autobrr/tvarchive/internal/models"
)

type countingRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *countingRecorder) Record(_ context.Context, userID int, ip string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, ip)
	return nil
}

func TestRecordUserIP(t *testing.T) {
	recorder := &countingRecorder{}
	handler := RecordUserIP(recorder, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	user := &models.User{ID: 7, Username: "alice"}
	serve := func(remoteAddr string, withUser bool) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/users/me", nil)
		req.RemoteAddr = remoteAddr
		if withUser {
			req = req.WithContext(ctxkeys.WithUser(req.Context(), user, ctxkeys.MethodBearer))
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	serve("198.51.100.4:1000", true)
	serve("198.51.100.4:2000", true)
	serve("198.51.100.5:1000", true)
	serve("198.51.100.6:1000", false)

	assert.Equal(t, []string{"198.51.100.4", "198.51.100.5"}, recorder.calls)
}
