// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/api/ctxkeys"
	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/models"
)

// Session keys shared with the login handler.
const (
	SessionUserID = "user_id"
	SessionFinger = "fingerprint"
)

// IsAuthenticated resolves the caller from a bearer token or, failing that,
// from the session cookie. Unauthenticated requests get 401.
func IsAuthenticated(authService *auth.Service, sessionManager *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var (
				user   *models.User
				method ctxkeys.Method
			)
			if token, ok := bearerToken(r); ok {
				u, err := authService.VerifyAccess(ctx, token)
				if err != nil {
					if !isAuthError(err) {
						log.Error().Err(err).Msg("Failed to verify access token")
						http.Error(w, "Internal server error", http.StatusInternalServerError)
						return
					}
					log.Debug().Err(err).Msg("Rejected access token")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				user, method = u, ctxkeys.MethodBearer
			} else {
				u, err := sessionUser(ctx, authService, sessionManager)
				if err != nil {
					log.Error().Err(err).Msg("Failed to load session user")
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				if u == nil {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				user, method = u, ctxkeys.MethodSession
			}

			next.ServeHTTP(w, r.WithContext(ctxkeys.WithUser(ctx, user, method)))
		})
	}
}

// sessionUser returns the active user bound to the session, or nil. A
// session whose password fingerprint no longer matches is destroyed.
func sessionUser(ctx context.Context, authService *auth.Service, sessionManager *scs.SessionManager) (*models.User, error) {
	userID := sessionManager.GetInt(ctx, SessionUserID)
	if userID == 0 {
		return nil, nil
	}

	user, err := authService.GetUser(ctx, userID)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = sessionManager.Destroy(ctx)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive || sessionManager.GetString(ctx, SessionFinger) != auth.Fingerprint(user) {
		_ = sessionManager.Destroy(ctx)
		return nil, nil
	}
	return user, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || (!strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "JWT")) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) ||
		errors.Is(err, auth.ErrStaleToken) ||
		errors.Is(err, auth.ErrInactive)
}

// RequireStaff rejects authenticated users that are neither staff nor
// superusers.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := ctxkeys.UserFrom(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !user.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerFromQuery promotes a token query param into the Authorization
// header. Use this only on routes that are fetched by plain links, such as
// image downloads.
func BearerFromQuery(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				if token := r.URL.Query().Get(param); token != "" {
					r.Header.Set("Authorization", "Bearer "+token)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
