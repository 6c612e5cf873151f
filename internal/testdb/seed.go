// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package testdb

import (
	"context"
	"testing"

	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

// Seed inserts archive fixtures straight through the stores, skipping the
// service layer and its change log.
type Seed struct {
	t  *testing.T
	db *database.DB
}

func NewSeed(t *testing.T, db *database.DB) *Seed {
	return &Seed{t: t, db: db}
}

// User creates an active account with a placeholder password hash. Options
// may adjust the create input before insertion.
func (s *Seed) User(username string, opts ...func(*models.UserCreate)) *models.User {
	s.t.Helper()

	create := models.UserCreate{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(&create)
	}

	var user *models.User
	s.write(func(ctx context.Context, tx dbinterface.TxQuerier) (err error) {
		user, err = models.NewUserStore(s.db).Tx(tx).Create(ctx, create)
		return err
	})
	return user
}

func Staff(create *models.UserCreate) { create.IsStaff = true }

func Inactive(create *models.UserCreate) { create.IsActive = false }

func (s *Seed) Series(authorID int, name, imdbURL string) *models.Series {
	s.t.Helper()

	var series *models.Series
	s.write(func(ctx context.Context, tx dbinterface.TxQuerier) (err error) {
		series, err = models.NewSeriesStore(s.db).Tx(tx).Create(ctx, authorID, models.SeriesCreate{
			Name:    name,
			ImdbURL: imdbURL,
		})
		return err
	})
	return series
}

func (s *Seed) write(fn func(ctx context.Context, tx dbinterface.TxQuerier) error) {
	s.t.Helper()

	ctx := context.Background()
	if err := s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error { return fn(ctx, tx) }); err != nil {
		s.t.Fatalf("seed: %v", err)
	}
}
