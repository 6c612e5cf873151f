// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/autobrr/tvarchive/internal/models"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 150
)

var usernamePattern = regexp.MustCompile(`^[\pL\pN.@+_-]+$`)

var commonPasswords = map[string]struct{}{
	"password":   {},
	"password1":  {},
	"12345678":   {},
	"123456789":  {},
	"1234567890": {},
	"qwerty123":  {},
	"qwertyuiop": {},
	"iloveyou":   {},
	"sunshine":   {},
	"football":   {},
	"baseball":   {},
	"letmein1":   {},
	"abc12345":   {},
	"trustno1":   {},
	"welcome1":   {},
}

// ValidatePassword applies the password policy. Messages are reported on field.
func ValidatePassword(field, password, username, email string) error {
	v := models.NewValidationError()

	if utf8.RuneCountInString(password) < minPasswordLength {
		v.Add(field, "this password is too short. It must contain at least 8 characters")
	}
	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		v.Add(field, "this password is entirely numeric")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		v.Add(field, "this password is too common")
	}
	lower := strings.ToLower(password)
	if username != "" && lower == strings.ToLower(username) {
		v.Add(field, "the password is too similar to the username")
	}
	if local, _, ok := strings.Cut(strings.ToLower(email), "@"); ok && local != "" && lower == local {
		v.Add(field, "the password is too similar to the email address")
	}

	return v.OrNil()
}

func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return "", models.FieldError("username", "this field may not be blank")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return "", models.FieldError("username", "ensure this field has no more than %d characters", maxUsernameLength)
	case !usernamePattern.MatchString(username):
		return "", models.FieldError("username", "enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters")
	}
	return username, nil
}

func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", models.FieldError("email", "this field may not be blank")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return "", models.FieldError("email", "enter a valid email address")
	}
	return email, nil
}

// ValidateCountry accepts "" or an ISO 3166-1 alpha-2 region code and returns
// it upper-cased.
func ValidateCountry(country string) (string, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return "", nil
	}
	if len(country) != 2 {
		return "", models.FieldError("country", "enter a two-letter ISO 3166 country code")
	}
	region, err := language.ParseRegion(country)
	if err != nil || !region.IsCountry() {
		return "", models.FieldError("country", "%q is not a valid country code", country)
	}
	return country, nil
}
