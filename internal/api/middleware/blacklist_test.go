// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	blocked map[string]bool
	err     error
	seen    []string
}

func (f *fakeChecker) Check(_ context.Context, ip string) (bool, string, error) {
	f.seen = append(f.seen, ip)
	if f.err != nil {
		return false, "", f.err
	}
	if f.blocked[ip] {
		return true, "list", nil
	}
	return false, "", nil
}

func TestBlockBlacklisted(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		checker    *fakeChecker
		remoteAddr string
		wantStatus int
		wantIP     string
	}{
		{
			name:       "allows unlisted address",
			checker:    &fakeChecker{},
			remoteAddr: "203.0.113.10:12345",
			wantStatus: http.StatusOK,
			wantIP:     "203.0.113.10",
		},
		{
			name:       "blocks listed address",
			checker:    &fakeChecker{blocked: map[string]bool{"203.0.113.10": true}},
			remoteAddr: "203.0.113.10:12345",
			wantStatus: http.StatusForbidden,
			wantIP:     "203.0.113.10",
		},
		{
			name:       "unmaps ipv4 in ipv6",
			checker:    &fakeChecker{blocked: map[string]bool{"127.0.0.1": true}},
			remoteAddr: "[::ffff:127.0.0.1]:54321",
			wantStatus: http.StatusForbidden,
			wantIP:     "127.0.0.1",
		},
		{
			name:       "bare address set by a trusted proxy",
			checker:    &fakeChecker{},
			remoteAddr: "2001:db8::1",
			wantStatus: http.StatusOK,
			wantIP:     "2001:db8::1",
		},
		{
			name:       "unparseable address",
			checker:    &fakeChecker{},
			remoteAddr: "not-an-ip",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "lookup failure",
			checker:    &fakeChecker{err: errors.New("database is locked")},
			remoteAddr: "203.0.113.10:12345",
			wantStatus: http.StatusInternalServerError,
			wantIP:     "203.0.113.10",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := BlockBlacklisted(tc.checker)(inner)

			req := httptest.NewRequest(http.MethodGet, "/api/archives/tvseries", nil)
			req.RemoteAddr = tc.remoteAddr
			resp := httptest.NewRecorder()

			handler.ServeHTTP(resp, req)
			assert.Equal(t, tc.wantStatus, resp.Code)
			if tc.wantIP != "" {
				assert.Equal(t, []string{tc.wantIP}, tc.checker.seen)
			}
		})
	}
}

func TestBlockBlacklisted_NilChecker(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	BlockBlacklisted(nil)(inner).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}
