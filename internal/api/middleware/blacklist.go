// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"
)

// BlacklistChecker reports whether an address is blocked and by which
// source.
type BlacklistChecker interface {
	Check(ctx context.Context, ip string) (bool, string, error)
}

// BlockBlacklisted rejects requests from blacklisted addresses before any
// authentication runs. It runs after TrustedRealIP.
func BlockBlacklisted(checker BlacklistChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if checker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, err := parseRemoteAddrIP(r.RemoteAddr)
			if err != nil {
				log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to parse remote address for blacklist check")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			blocked, source, err := checker.Check(r.Context(), addr.String())
			if err != nil {
				log.Error().Err(err).Str("ip", addr.String()).Msg("Blacklist lookup failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if blocked {
				log.Debug().
					Str("ip", addr.String()).
					Str("source", source).
					Str("url", r.URL.Path).
					Msg("Rejected request from blacklisted address")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the normalized client address of r, or an empty string
// when RemoteAddr cannot be parsed.
func ClientIP(r *http.Request) string {
	addr, err := parseRemoteAddrIP(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return addr.String()
}

func parseRemoteAddrIP(remoteAddr string) (netip.Addr, error) {
	trimmed := strings.TrimSpace(remoteAddr)
	if addr, err := netip.ParseAddr(strings.Trim(trimmed, "[]")); err == nil {
		return addr.Unmap().WithZone(""), nil
	}

	host, _, err := net.SplitHostPort(trimmed)
	if err != nil {
		return netip.Addr{}, err
	}

	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, err
	}

	return addr.Unmap().WithZone(""), nil
}
