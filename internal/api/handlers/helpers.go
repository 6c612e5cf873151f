// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/api/ctxkeys"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
	"github.com/autobrr/tvarchive/internal/services/imdb"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ListResponse wraps a page of results.
type ListResponse[T any] struct {
	Count      int  `json:"count"`
	NextOffset *int `json:"next_offset"`
	Results    []T  `json:"results"`
}

func newListResponse[T any](results []T, count int, page PaginationParams) ListResponse[T] {
	resp := ListResponse[T]{Count: count, Results: results}
	if resp.Results == nil {
		resp.Results = []T{}
	}
	if next := page.Offset + len(results); len(results) > 0 && next < count {
		resp.NextOffset = &next
	}
	return resp
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

var notFoundErrors = []error{
	models.ErrUserNotFound,
	models.ErrSeriesNotFound,
	models.ErrSeasonNotFound,
	models.ErrImageNotFound,
	models.ErrSubtitleNotFound,
	models.ErrGroupingNotFound,
	models.ErrBlacklistNotFound,
	models.ErrChangeLogNotFound,
	imdb.ErrTitleNotFound,
}

var conflictErrors = []error{
	models.ErrUsernameTaken,
	models.ErrEmailTaken,
	models.ErrImdbURLTaken,
	models.ErrSeasonExists,
	models.ErrImageExists,
	models.ErrSubtitleExists,
	models.ErrGroupingExists,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RespondServiceError maps errors returned by the services to a status
// code. Unknown errors are logged and reported as fallbackMessage.
func RespondServiceError(w http.ResponseWriter, err error, fallbackMessage string) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		RespondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Fields: validation.Fields,
		})
	case matchesAny(err, notFoundErrors):
		RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, archive.ErrPermissionDenied):
		RespondError(w, http.StatusForbidden, err.Error())
	case matchesAny(err, conflictErrors):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		log.Debug().Err(err).Msg("Request cancelled")
	default:
		log.Error().Err(err).Msg(fallbackMessage)
		RespondError(w, http.StatusInternalServerError, fallbackMessage)
	}
}

// UserFromContext returns the user set by the authentication middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	return ctxkeys.UserFrom(ctx)
}

// requireUser responds 401 when the request carries no user.
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		RespondError(w, http.StatusUnauthorized, "Authentication credentials were not provided")
		return nil, false
	}
	return user, true
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseIntParam extracts and validates a generic integer URL parameter.
// Returns the value and true on success, or 0 and false if invalid (error already sent).
// The displayName is used in error messages (e.g., "series ID" for user-friendly output).
func ParseIntParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int, bool) {
	str, ok := ParseStringParam(w, r, paramName, displayName)
	if !ok {
		return 0, false
	}
	value, err := strconv.Atoi(str)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// ParsePositiveIntParam extracts and validates a positive integer URL parameter (> 0).
func ParsePositiveIntParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int, bool) {
	value, ok := ParseIntParam(w, r, paramName, displayName)
	if !ok {
		return 0, false
	}
	if value <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// ParseStringParam extracts and validates a generic string URL parameter.
// The value is trimmed of whitespace before validation.
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, paramName))
	if value == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}

func ParseSeriesID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return ParsePositiveIntParam(w, r, "seriesID", "series ID")
}

func ParseSeasonID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return ParsePositiveIntParam(w, r, "seasonID", "season ID")
}

// PaginationParams holds parsed pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination extracts and validates pagination parameters from query string.
// Uses provided defaults and enforces maxLimit. Invalid values are silently ignored.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	p := PaginationParams{Limit: defaultLimit, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			if parsed > maxLimit {
				parsed = maxLimit
			}
			p.Limit = parsed
		}
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			p.Offset = parsed
		}
	}

	return p
}

// parseBoolQuery reads an optional boolean query parameter. Django style
// "True"/"False" values are accepted.
func parseBoolQuery(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return nil, models.FieldError(name, "must be a boolean")
	}
	return &value, nil
}
