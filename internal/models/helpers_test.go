// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"testing"

	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/testdb"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	return testdb.Open(t)
}

func createUser(t *testing.T, db *database.DB, username string) *models.User {
	t.Helper()
	return testdb.NewSeed(t, db).User(username)
}

func createSeries(t *testing.T, db *database.DB, authorID int, name, imdb string) *models.Series {
	t.Helper()
	return testdb.NewSeed(t, db).Series(authorID, name, imdb)
}

func intPtr(v int) *int { return &v }
