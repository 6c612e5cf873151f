// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrustedRealIP(t *testing.T) {
	t.Parallel()

	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		peer    string
		headers map[string]string
		want    string
	}{
		{
			name:    "no trusted proxies ignores headers",
			peer:    "192.0.2.7:5555",
			headers: map[string]string{"X-Real-IP": "198.51.100.1", "X-Forwarded-For": "198.51.100.1"},
			want:    "192.0.2.7:5555",
		},
		{
			name:    "untrusted peer ignores headers",
			trusted: proxies,
			peer:    "192.0.2.7:5555",
			headers: map[string]string{"X-Real-IP": "198.51.100.1", "True-Client-IP": "198.51.100.2"},
			want:    "192.0.2.7:5555",
		},
		{
			name:    "rightmost untrusted forwarded hop",
			trusted: proxies,
			peer:    "10.1.2.3:443",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.66, 203.0.113.5, 10.9.9.9"},
			want:    "203.0.113.5",
		},
		{
			name:    "only proxies in chain",
			trusted: proxies,
			peer:    "10.1.2.3:443",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.8, 10.9.9.9"},
			want:    "10.0.0.8",
		},
		{
			name:    "x-real-ip from trusted proxy",
			trusted: proxies,
			peer:    "[::1]:8080",
			headers: map[string]string{"X-Real-IP": "2001:db8::7"},
			want:    "2001:db8::7",
		},
		{
			name:    "true-client-ip from trusted proxy",
			trusted: proxies,
			peer:    "10.1.2.3:443",
			headers: map[string]string{"True-Client-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "garbage header keeps peer",
			trusted: proxies,
			peer:    "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "not-an-address"},
			want:    "10.1.2.3:443",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			handler := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/archives/tvseries", nil)
			req.RemoteAddr = tt.peer
			for name, value := range tt.headers {
				req.Header.Set(name, value)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrustedRealIP_SpoofedHeaderStillBlocked(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{blocked: map[string]bool{"192.0.2.7": true}}
	handler := TrustedRealIP(nil)(BlockBlacklisted(checker)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	req.Header.Set("X-Real-IP", "198.51.100.1")
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
