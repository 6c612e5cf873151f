// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/api/ctxkeys"
)

// UserIPRecorder stores the address an authenticated user was seen from.
type UserIPRecorder interface {
	Record(ctx context.Context, userID int, ip string) error
}

// RecordUserIP samples the client address of authenticated requests. A
// given user and address pair is written at most once per interval.
func RecordUserIP(recorder UserIPRecorder, interval time.Duration) func(http.Handler) http.Handler {
	seen := ttlcache.New(ttlcache.Options[string, struct{}]{}.SetDefaultTTL(interval))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := ctxkeys.UserFrom(r.Context())
			ip := ClientIP(r)
			if ok && ip != "" {
				key := strconv.Itoa(user.ID) + "|" + ip
				if _, found := seen.Get(key); !found {
					if err := recorder.Record(r.Context(), user.ID, ip); err != nil {
						log.Warn().Err(err).Int("userID", user.ID).Str("ip", ip).Msg("Failed to record user ip")
					} else {
						seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
