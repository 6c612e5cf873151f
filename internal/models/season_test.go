// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

func TestSeason_Validate(t *testing.T) {
	t.Parallel()

	start := models.NewDate(2020, time.January, 1)
	end := models.NewDate(2020, time.March, 1)

	tests := []struct {
		name       string
		season     models.Season
		wantFields []string
	}{
		{
			name: "valid",
			season: models.Season{
				SeasonNumber: 1, NumberOfEpisodes: 3, LastWatchedEpisode: intPtr(3),
				TranslationStart: start, TranslationEnd: end,
				Episodes: map[int]models.Date{1: start, 3: end},
			},
		},
		{
			name:       "season number zero",
			season:     models.Season{SeasonNumber: 0, NumberOfEpisodes: 1},
			wantFields: []string{"season_number"},
		},
		{
			name:       "watched beyond total",
			season:     models.Season{SeasonNumber: 1, NumberOfEpisodes: 2, LastWatchedEpisode: intPtr(3)},
			wantFields: []string{"last_watched_episode"},
		},
		{
			name:       "inverted range",
			season:     models.Season{SeasonNumber: 1, NumberOfEpisodes: 2, TranslationStart: end, TranslationEnd: start},
			wantFields: []string{"translation_end"},
		},
		{
			name: "episode outside range",
			season: models.Season{
				SeasonNumber: 1, NumberOfEpisodes: 2,
				TranslationStart: start, TranslationEnd: end,
				Episodes: map[int]models.Date{2: models.NewDate(2021, time.January, 1)},
			},
			wantFields: []string{"episodes.2"},
		},
		{
			name: "episode number beyond total",
			season: models.Season{
				SeasonNumber: 1, NumberOfEpisodes: 2,
				Episodes: map[int]models.Date{5: start},
			},
			wantFields: []string{"episodes.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.season.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			for _, field := range tt.wantFields {
				assert.Contains(t, verr.Fields, field)
			}
		})
	}
}

func TestSeasonUpdate_Apply(t *testing.T) {
	t.Parallel()

	base := &models.Season{
		ID: 1, SeasonNumber: 1, NumberOfEpisodes: 10, LastWatchedEpisode: intPtr(4),
		Episodes: map[int]models.Date{1: models.NewDate(2020, time.May, 1)},
	}

	next := models.SeasonUpdate{NumberOfEpisodes: intPtr(12), ClearLastWatched: true}.Apply(base)
	assert.Equal(t, 12, next.NumberOfEpisodes)
	assert.Nil(t, next.LastWatchedEpisode)
	assert.Equal(t, 10, base.NumberOfEpisodes)
	assert.Equal(t, 4, *base.LastWatchedEpisode)

	next.Episodes[2] = models.NewDate(2020, time.May, 8)
	assert.Len(t, base.Episodes, 1)
}

func TestSeasonUpdate_ClearTranslation(t *testing.T) {
	t.Parallel()

	base := &models.Season{
		ID: 1, SeasonNumber: 1, NumberOfEpisodes: 10,
		TranslationStart: models.NewDate(2020, time.May, 1),
		TranslationEnd:   models.NewDate(2020, time.July, 3),
	}

	var update models.SeasonUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"translation_start":null,"translation_end":null}`), &update))
	next := update.Apply(base)
	assert.Equal(t, base.TranslationStart, next.TranslationStart, "null leaves the date untouched")

	require.NoError(t, json.Unmarshal([]byte(`{"clear_translation":true}`), &update))
	next = update.Apply(base)
	assert.True(t, next.TranslationStart.IsZero())
	assert.True(t, next.TranslationEnd.IsZero())
	assert.False(t, base.TranslationStart.IsZero())

	start := models.NewDate(2021, time.March, 2)
	next = models.SeasonUpdate{ClearTranslation: true, TranslationStart: &start}.Apply(base)
	assert.True(t, next.TranslationStart.IsZero())
}

func createSeason(t *testing.T, db *database.DB, season *models.Season) (*models.Season, error) {
	t.Helper()

	var created *models.Season
	err := db.WithTx(context.Background(), nil, func(tx dbinterface.TxQuerier) error {
		var err error
		created, err = models.NewSeasonStore(db).Tx(tx).Create(context.Background(), season)
		return err
	})
	return created, err
}

func TestSeasonStore_CRUD(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	author := createUser(t, db, "author")
	series := createSeries(t, db, author.ID, "Dark", "https://www.imdb.com/title/tt5753856/")
	store := models.NewSeasonStore(db)

	start := models.NewDate(2017, time.December, 1)
	season, err := createSeason(t, db, &models.Season{
		SeriesID:           series.ID,
		SeasonNumber:       1,
		NumberOfEpisodes:   10,
		LastWatchedEpisode: intPtr(5),
		TranslationStart:   start,
		TranslationEnd:     models.NewDate(2017, time.December, 31),
		Episodes:           map[int]models.Date{1: start, 2: models.NewDate(2017, time.December, 8)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, season.Progress, 0.0001)
	assert.False(t, season.FullyWatched)
	assert.Equal(t, "2017-12-08", season.Episodes[2].String())
	assert.Equal(t, "2017-12-01", season.TranslationStart.String())

	_, err = createSeason(t, db, &models.Season{SeriesID: series.ID, SeasonNumber: 1, NumberOfEpisodes: 8})
	assert.ErrorIs(t, err, models.ErrSeasonExists)

	_, err = createSeason(t, db, &models.Season{SeriesID: series.ID, SeasonNumber: 2, NumberOfEpisodes: 0})
	assert.True(t, models.IsValidationError(err), "schema check should surface as a validation error: %v", err)

	season.LastWatchedEpisode = intPtr(10)
	season.Episodes = map[int]models.Date{10: models.NewDate(2017, time.December, 31)}
	err = db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		season, err = store.Tx(tx).Update(ctx, season)
		return err
	})
	require.NoError(t, err)
	assert.True(t, season.FullyWatched)
	assert.Len(t, season.Episodes, 1)

	list, err := store.ListBySeries(ctx, series.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := models.NewSeriesStore(db).Get(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.SeasonsCount)
	assert.Equal(t, 10, updated.WatchedEpisodes)

	_, err = store.GetForSeries(ctx, series.ID+1, season.ID)
	assert.ErrorIs(t, err, models.ErrSeasonNotFound)

	require.NoError(t, store.Delete(ctx, season.ID))
	assert.ErrorIs(t, store.Delete(ctx, season.ID), models.ErrSeasonNotFound)
}

func TestSubtitleStore_UniquePerEpisodeLanguage(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	author := createUser(t, db, "author")
	series := createSeries(t, db, author.ID, "Dark", "https://www.imdb.com/title/tt5753856/")
	season, err := createSeason(t, db, &models.Season{SeriesID: series.ID, SeasonNumber: 1, NumberOfEpisodes: 3})
	require.NoError(t, err)

	create := models.SubtitleCreate{EpisodeNumber: 2, Language: " EN ", Text: "1\n00:00:01,000 --> 00:00:02,000\nHallo"}
	require.NoError(t, create.Validate(season))
	assert.Equal(t, "en", create.Language)

	bad := models.SubtitleCreate{EpisodeNumber: 4, Language: "english!", Text: ""}
	var verr *models.ValidationError
	require.ErrorAs(t, bad.Validate(season), &verr)
	assert.Contains(t, verr.Fields, "episode_number")
	assert.Contains(t, verr.Fields, "language")
	assert.Contains(t, verr.Fields, "text")

	store := models.NewSubtitleStore(db)
	insert := func() error {
		return db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
			_, err := store.Tx(tx).Create(ctx, season.ID, create)
			return err
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), models.ErrSubtitleExists)

	subs, err := store.ListBySeason(ctx, season.ID, "EN")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	subs, err = store.ListBySeason(ctx, season.ID, "de")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
