// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ctxkeys

import (
	"context"

	"github.com/autobrr/tvarchive/internal/models"
)

type Key int

const (
	// User holds the authenticated *models.User.
	User Key = iota
	// AuthMethod holds how User was authenticated.
	AuthMethod
)

type Method string

const (
	MethodSession Method = "session"
	MethodBearer  Method = "bearer"
)

func WithUser(ctx context.Context, user *models.User, method Method) context.Context {
	ctx = context.WithValue(ctx, User, user)
	return context.WithValue(ctx, AuthMethod, method)
}

func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(User).(*models.User)
	return user, ok && user != nil
}

// MethodFrom returns "" for requests that did not pass authentication.
func MethodFrom(ctx context.Context) Method {
	method, _ := ctx.Value(AuthMethod).(Method)
	return method
}
