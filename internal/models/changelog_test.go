// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

func TestChangeLogStore_RecordListPurge(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	user := createUser(t, db, "editor")
	store := models.NewChangeLogStore(db)

	old := time.Now().UTC().Add(-48 * time.Hour)
	entries := []*models.ChangeLogEntry{
		{ContentType: models.ContentSeries, ObjectID: 1, UserID: &user.ID, AsWho: models.AsAuthor, Operation: models.OpCreate,
			State: map[string]any{"name": "Dark"}, AccessTime: old},
		{ContentType: models.ContentSeries, ObjectID: 1, UserID: &user.ID, AsWho: models.AsAuthor, Operation: models.OpUpdate,
			State: map[string]any{"name": map[string]any{"old": "Dark", "new": "Dark (2017)"}}},
		{ContentType: models.ContentSeason, ObjectID: 7, UserID: &user.ID, AsWho: models.AsMaster, Operation: models.OpDelete},
	}

	err := db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		for _, entry := range entries {
			if err := store.Tx(tx).Record(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotZero(t, entry.ID)
	}

	history, total, err := store.History(ctx, models.ContentSeries, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, history, 2)
	assert.Equal(t, models.OpUpdate, history[0].Operation)
	assert.Equal(t, "editor", history[0].Username)
	change, ok := history[0].State["name"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dark (2017)", change["new"])

	page, total, err := store.History(ctx, models.ContentSeries, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, models.OpCreate, page[0].Operation)

	list, total, err := store.List(ctx, models.ChangeLogFilter{Operation: models.OpDelete})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.AsMaster, list[0].AsWho)
	assert.Empty(t, list[0].State)

	_, total, err = store.List(ctx, models.ChangeLogFilter{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	purged, err := store.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, err = store.Get(ctx, entries[0].ID)
	assert.ErrorIs(t, err, models.ErrChangeLogNotFound)
}

func TestParseContentTypeAndOperation(t *testing.T) {
	t.Parallel()

	ct, err := models.ParseContentType("Series")
	require.NoError(t, err)
	assert.Equal(t, models.ContentSeries, ct)

	_, err = models.ParseContentType("users")
	assert.Error(t, err)

	op, err := models.ParseOperation("update")
	require.NoError(t, err)
	assert.Equal(t, models.OpUpdate, op)

	_, err = models.ParseOperation("merge")
	assert.Error(t, err)
}
