// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

func TestGroupingStore_CRUD(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	owner := createUser(t, db, "owner")
	dark := createSeries(t, db, owner.ID, "Dark", "https://www.imdb.com/title/tt5753856/")
	lost := createSeries(t, db, owner.ID, "Lost", "https://www.imdb.com/title/tt0411008/")
	store := models.NewGroupingStore(db)

	var grouping *models.Grouping
	err := db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		var err error
		grouping, err = store.Tx(tx).Create(ctx, owner.ID, "Mystery", []int{dark.ID, dark.ID, lost.ID})
		return err
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{dark.ID, lost.ID}, grouping.SeriesIDs)

	err = db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		_, err := store.Tx(tx).Create(ctx, owner.ID, "Mystery", nil)
		return err
	})
	assert.ErrorIs(t, err, models.ErrGroupingExists)

	err = db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		var err error
		grouping, err = store.Tx(tx).Update(ctx, grouping.ID, "Sci-fi mystery", []int{lost.ID})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "Sci-fi mystery", grouping.Name)
	assert.Equal(t, []int{lost.ID}, grouping.SeriesIDs)

	list, err := store.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, grouping.ID))
	_, err = store.Get(ctx, grouping.ID)
	assert.ErrorIs(t, err, models.ErrGroupingNotFound)
}

func TestPermissionStore_ReplaceAndHas(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	author := createUser(t, db, "author")
	viewer := createUser(t, db, "viewer")
	editor := createUser(t, db, "editor")
	series := createSeries(t, db, author.ID, "Dark", "https://www.imdb.com/title/tt5753856/")
	store := models.NewPermissionStore(db)

	err := db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		return store.Tx(tx).Replace(ctx, series.ID, []models.Grant{
			{UserID: viewer.ID, Perms: []models.Perm{models.PermView}},
			{UserID: editor.ID, Perms: []models.Perm{models.PermChange, models.PermChange}},
		})
	})
	require.NoError(t, err)

	tests := []struct {
		user int
		perm models.Perm
		want bool
	}{
		{viewer.ID, models.PermView, true},
		{viewer.ID, models.PermChange, false},
		{editor.ID, models.PermView, true},
		{editor.ID, models.PermChange, true},
		{editor.ID, models.PermDelete, false},
		{author.ID, models.PermView, false},
	}
	for _, tt := range tests {
		got, err := store.Has(ctx, series.ID, tt.user, tt.perm)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "user %d perm %s", tt.user, tt.perm)
	}

	grants, err := store.List(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "editor", grants[0].Username)
	assert.Equal(t, []models.Perm{models.PermChange}, grants[0].Perms)

	state := models.GrantState(grants)
	assert.Equal(t, []string{"view"}, state["viewer"])

	err = db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		return store.Tx(tx).Replace(ctx, series.ID, nil)
	})
	require.NoError(t, err)
	grants, err = store.List(ctx, series.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
