// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/auth"
)

type MetricsServer struct {
	manager        *Manager
	server         *http.Server
	basicAuthUsers map[string]string
}

func NewMetricsServer(manager *Manager, host string, port int, basicAuthUsers string) *MetricsServer {
	users := parseBasicAuthUsers(basicAuthUsers)

	r := chi.NewRouter()

	handler := promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	if len(users) > 0 {
		r.With(BasicAuth("metrics", users)).Get("/metrics", handler.ServeHTTP)
	} else {
		r.Get("/metrics", handler.ServeHTTP)
	}

	return &MetricsServer{
		manager:        manager,
		basicAuthUsers: users,
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// parseBasicAuthUsers reads "user:secret" pairs separated by commas. The
// parameter section of an argon2id hash contains commas, so fragments
// without a colon that follow a hash are joined back onto it.
func parseBasicAuthUsers(raw string) map[string]string {
	users := make(map[string]string)
	last := ""
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, pass, ok := strings.Cut(entry, ":")
		if !ok && last != "" && auth.IsHash(users[last]) {
			users[last] += "," + entry
			continue
		}
		if !ok || user == "" {
			log.Warn().Msg("Skipping invalid metrics basic auth entry")
			last = ""
			continue
		}
		users[user] = pass
		last = user
	}
	return users
}

func (s *MetricsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// checkSecret accepts either a plain secret or an argon2id hash from
// `tvarchive hash-password` as the configured value.
func checkSecret(given, expected string) bool {
	if auth.IsHash(expected) {
		valid, err := auth.VerifyPassword(given, expected)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid metrics basic auth hash")
		}
		return valid
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// BasicAuth guards a handler with HTTP basic auth against a fixed user map.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok {
				if expected, known := users[user]; known && checkSecret(pass, expected) {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm=%q`, realm))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
