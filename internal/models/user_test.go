// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/testdb"
)

func TestUserStore_CreateAndLookup(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	store := models.NewUserStore(db)

	user := createUser(t, db, "Alice")
	assert.Equal(t, "Alice", user.Username)
	assert.True(t, user.IsActive)
	assert.False(t, user.Deleted)
	assert.False(t, user.DateJoined.IsZero())

	byName, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := store.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = store.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestUserStore_CreateDuplicate(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	createUser(t, db, "bob")

	tests := []struct {
		name    string
		create  models.UserCreate
		wantErr error
	}{
		{
			name:    "username differs only in case",
			create:  models.UserCreate{Username: "BOB", Email: "other@example.com", PasswordHash: "x"},
			wantErr: models.ErrUsernameTaken,
		},
		{
			name:    "email reused",
			create:  models.UserCreate{Username: "robert", Email: "Bob@Example.com", PasswordHash: "x"},
			wantErr: models.ErrEmailTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
				_, err := models.NewUserStore(db).Tx(tx).Create(ctx, tt.create)
				return err
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserStore_SoftDeleteReleasesSlaves(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	store := models.NewUserStore(db)

	master := createUser(t, db, "master")
	slave := createUser(t, db, "slave")

	require.NoError(t, store.SetMaster(ctx, slave.ID, &master.ID))

	slaves, err := store.ListSlaves(ctx, master.ID)
	require.NoError(t, err)
	require.Len(t, slaves, 1)
	assert.Equal(t, slave.ID, slaves[0].ID)

	err = db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		return store.Tx(tx).SoftDelete(ctx, master.ID)
	})
	require.NoError(t, err)

	_, err = store.GetByID(ctx, master.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	deleted, err := store.GetByIDIncludingDeleted(ctx, master.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.False(t, deleted.IsActive)

	released, err := store.GetByID(ctx, slave.ID)
	require.NoError(t, err)
	assert.Nil(t, released.MasterID)

	list, total, err := store.List(ctx, models.UserListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	_, total, err = store.List(ctx, models.UserListOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.NoError(t, store.Undelete(ctx, master.ID))
	restored, err := store.GetByID(ctx, master.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
}

func TestUserStore_MasterCannotBeSelf(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	user := createUser(t, db, "solo")

	err := models.NewUserStore(db).SetMaster(t.Context(), user.ID, &user.ID)
	require.Error(t, err)
}

func TestUserIPStore_RecordUpserts(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, db, "carol")
	store := models.NewUserIPStore(db)

	require.NoError(t, store.Record(ctx, user.ID, "10.0.0.1"))
	require.NoError(t, store.Record(ctx, user.ID, "10.0.0.1"))
	require.NoError(t, store.Record(ctx, user.ID, "10.0.0.2"))

	ips, err := store.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, ips, 2)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, []string{ips[0].IP, ips[1].IP})
}

func TestUserStore_ListSearch(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	seed := testdb.NewSeed(t, db)
	admin := seed.User("admin", testdb.Staff)
	pending := seed.User("new_user", testdb.Inactive)
	seed.User("newsreader")

	assert.True(t, admin.IsStaff)
	assert.False(t, pending.IsActive)

	store := models.NewUserStore(db)

	list, total, err := store.List(t.Context(), models.UserListOptions{Search: "new_"})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "underscore matches literally")
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	_, total, err = store.List(t.Context(), models.UserListOptions{Search: "ADMIN@EXAMPLE"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
