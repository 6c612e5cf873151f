// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/autobrr/tvarchive/internal/metrics/collector"
)

// Metrics counts finished requests by method and status. A nil collector
// disables counting.
func Metrics(activity *collector.ActivityCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if activity == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			activity.ObserveRequest(r.Method, status)
		})
	}
}
