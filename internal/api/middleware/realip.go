// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr from forwarding headers, but only when
// the connecting peer is one of the trusted proxies. X-Forwarded-For is
// walked from the right and the first untrusted hop is taken as the client.
// Without trusted proxies the headers are ignored.
func TrustedRealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(trusted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, err := parseRemoteAddrIP(r.RemoteAddr)
			if err == nil && containsAddr(trusted, peer) {
				if client, ok := forwardedClient(r.Header, trusted); ok {
					r.RemoteAddr = client.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(h http.Header, trusted []netip.Prefix) (netip.Addr, bool) {
	if values := h.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := parseRemoteAddrIP(hops[i])
			if err != nil {
				break
			}
			last = addr
			if !containsAddr(trusted, addr) {
				return addr, true
			}
		}
		if last.IsValid() {
			return last, true
		}
	}

	for _, name := range []string{"X-Real-IP", "True-Client-IP"} {
		if addr, err := parseRemoteAddrIP(h.Get(name)); err == nil {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
