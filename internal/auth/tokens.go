// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/autobrr/tvarchive/internal/models"
)

type Purpose string

const (
	PurposeAccess     Purpose = "access"
	PurposeRefresh    Purpose = "refresh"
	PurposeActivation Purpose = "activation"
	PurposeReset      Purpose = "reset"
)

const (
	tokenIssuer       = "tvarchive"
	activationTTL     = 72 * time.Hour
	passwordResetTTL  = 24 * time.Hour
	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims of every token the service issues. Fingerprint
// ties one-time tokens to the account state they were issued for.
type Claims struct {
	jwt.RegisteredClaims
	Purpose     Purpose `json:"purpose"`
	Fingerprint string  `json:"fp,omitempty"`
}

func (c *Claims) UserID() (int, error) {
	id, err := strconv.Atoi(c.Subject)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *TokenIssuer) ttl(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeAccess:
		return i.accessTTL
	case PurposeRefresh:
		return i.refreshTTL
	case PurposeActivation:
		return activationTTL
	default:
		return passwordResetTTL
	}
}

// Fingerprint changes whenever the password, email or activation state of
// the account changes, which invalidates outstanding activation and reset
// tokens.
func Fingerprint(user *models.User) string {
	sum := xxhash.Sum64String(fmt.Sprintf("%d|%s|%s|%t", user.ID, user.PasswordHash, user.Email, user.IsActive))
	return strconv.FormatUint(sum, 36)
}

// Issue signs a token for user. It returns the token and its expiry.
func (i *TokenIssuer) Issue(user *models.User, purpose Purpose) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl(purpose))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.Itoa(user.ID),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Purpose: purpose,
	}
	if purpose == PurposeActivation || purpose == PurposeReset || purpose == PurposeRefresh {
		claims.Fingerprint = Fingerprint(user)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, expires, nil
}

// Parse validates signature, expiry and purpose. Fingerprint checks are left
// to the caller, which has to load the user first.
func (i *TokenIssuer) Parse(token string, purpose Purpose) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
