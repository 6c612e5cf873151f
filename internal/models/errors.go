// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("a user with that username already exists")
	ErrEmailTaken        = errors.New("a user with that email already exists")
	ErrSeriesNotFound    = errors.New("series not found")
	ErrImdbURLTaken      = errors.New("series with this imdb url already exists")
	ErrSeasonNotFound    = errors.New("season not found")
	ErrSeasonExists      = errors.New("season with this number already exists for the series")
	ErrImageNotFound     = errors.New("image not found")
	ErrImageExists       = errors.New("identical image already attached to the series")
	ErrSubtitleNotFound  = errors.New("subtitle not found")
	ErrSubtitleExists    = errors.New("subtitle for this episode and language already exists")
	ErrGroupingNotFound  = errors.New("grouping not found")
	ErrGroupingExists    = errors.New("grouping with this name already exists")
	ErrBlacklistNotFound = errors.New("ip is not blacklisted")
	ErrChangeLogNotFound = errors.New("change log entry not found")
)

// ValidationError collects per-field validation messages.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// FieldError is shorthand for a ValidationError holding a single message.
func FieldError(field, format string, args ...any) *ValidationError {
	v := NewValidationError()
	v.Add(field, fmt.Sprintf(format, args...))
	return v
}

func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (v *ValidationError) OrNil() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// now returns the current time in the form stored in the database.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Now is the exported form of now for services that stamp records themselves.
func Now() time.Time {
	return now()
}
