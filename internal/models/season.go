// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

type Season struct {
	ID                 int          `json:"id" yaml:"-"`
	SeriesID           int          `json:"series" yaml:"-"`
	SeasonNumber       int          `json:"season_number" yaml:"season_number"`
	NumberOfEpisodes   int          `json:"number_of_episodes" yaml:"number_of_episodes"`
	LastWatchedEpisode *int         `json:"last_watched_episode" yaml:"last_watched_episode,omitempty"`
	TranslationStart   Date         `json:"translation_start" yaml:"translation_start,omitempty"`
	TranslationEnd     Date         `json:"translation_end" yaml:"translation_end,omitempty"`
	Episodes           map[int]Date `json:"episodes" yaml:"episodes,omitempty"`
	Progress           float64      `json:"progress" yaml:"-"`
	FullyWatched       bool         `json:"fully_watched" yaml:"-"`
	CreatedAt          time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time    `json:"updated_at" yaml:"-"`
}

type SeasonCreate struct {
	SeasonNumber       int          `json:"season_number"`
	NumberOfEpisodes   int          `json:"number_of_episodes"`
	LastWatchedEpisode *int         `json:"last_watched_episode"`
	TranslationStart   Date         `json:"translation_start"`
	TranslationEnd     Date         `json:"translation_end"`
	Episodes           map[int]Date `json:"episodes"`
}

// SeasonUpdate holds PATCH fields. ClearLastWatched resets the counter to NULL
// and ClearTranslation empties both translation dates, since a JSON null
// cannot be told apart from an absent pointer field.
type SeasonUpdate struct {
	SeasonNumber       *int          `json:"season_number"`
	NumberOfEpisodes   *int          `json:"number_of_episodes"`
	LastWatchedEpisode *int          `json:"last_watched_episode"`
	ClearLastWatched   bool          `json:"clear_last_watched"`
	ClearTranslation   bool          `json:"clear_translation"`
	TranslationStart   *Date         `json:"translation_start"`
	TranslationEnd     *Date         `json:"translation_end"`
	Episodes           *map[int]Date `json:"episodes"`
}

func (c SeasonCreate) Season(seriesID int) *Season {
	return &Season{
		SeriesID:           seriesID,
		SeasonNumber:       c.SeasonNumber,
		NumberOfEpisodes:   c.NumberOfEpisodes,
		LastWatchedEpisode: c.LastWatchedEpisode,
		TranslationStart:   c.TranslationStart,
		TranslationEnd:     c.TranslationEnd,
		Episodes:           c.Episodes,
	}
}

// Apply merges a PATCH into a copy of the season.
func (u SeasonUpdate) Apply(season *Season) *Season {
	next := *season
	next.Episodes = make(map[int]Date, len(season.Episodes))
	for k, v := range season.Episodes {
		next.Episodes[k] = v
	}

	if u.SeasonNumber != nil {
		next.SeasonNumber = *u.SeasonNumber
	}
	if u.NumberOfEpisodes != nil {
		next.NumberOfEpisodes = *u.NumberOfEpisodes
	}
	if u.ClearLastWatched {
		next.LastWatchedEpisode = nil
	} else if u.LastWatchedEpisode != nil {
		v := *u.LastWatchedEpisode
		next.LastWatchedEpisode = &v
	}
	if u.ClearTranslation {
		next.TranslationStart = Date{}
		next.TranslationEnd = Date{}
	} else {
		if u.TranslationStart != nil {
			next.TranslationStart = *u.TranslationStart
		}
		if u.TranslationEnd != nil {
			next.TranslationEnd = *u.TranslationEnd
		}
	}
	if u.Episodes != nil {
		next.Episodes = *u.Episodes
	}
	return &next
}

// Validate checks every season invariant enforced at the application level.
func (s *Season) Validate() error {
	v := NewValidationError()

	if s.SeasonNumber < 1 {
		v.Add("season_number", "ensure this value is greater than or equal to 1")
	}
	if s.NumberOfEpisodes < 1 {
		v.Add("number_of_episodes", "ensure this value is greater than or equal to 1")
	}
	if s.LastWatchedEpisode != nil {
		lw := *s.LastWatchedEpisode
		if lw < 0 {
			v.Add("last_watched_episode", "ensure this value is greater than or equal to 0")
		} else if s.NumberOfEpisodes >= 1 && lw > s.NumberOfEpisodes {
			v.Add("last_watched_episode", fmt.Sprintf("last watched episode must not exceed number of episodes (%d)", s.NumberOfEpisodes))
		}
	}

	rangeSet := !s.TranslationStart.IsZero() && !s.TranslationEnd.IsZero()
	if rangeSet && s.TranslationEnd.Before(s.TranslationStart) {
		v.Add("translation_end", "translation end must not be earlier than translation start")
	}

	for _, ep := range s.sortedEpisodeNumbers() {
		date := s.Episodes[ep]
		key := "episodes." + strconv.Itoa(ep)
		if ep < 1 || (s.NumberOfEpisodes >= 1 && ep > s.NumberOfEpisodes) {
			v.Add(key, fmt.Sprintf("episode number must be between 1 and %d", s.NumberOfEpisodes))
			continue
		}
		if date.IsZero() {
			v.Add(key, "episode date is required")
			continue
		}
		if !s.TranslationStart.IsZero() && date.Before(s.TranslationStart) {
			v.Add(key, "episode date is before translation start")
		}
		if !s.TranslationEnd.IsZero() && date.After(s.TranslationEnd) {
			v.Add(key, "episode date is after translation end")
		}
	}

	return v.OrNil()
}

func (s *Season) sortedEpisodeNumbers() []int {
	keys := make([]int, 0, len(s.Episodes))
	for k := range s.Episodes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (s *Season) fillDerived() {
	if s.Episodes == nil {
		s.Episodes = map[int]Date{}
	}
	watched := 0
	if s.LastWatchedEpisode != nil {
		watched = *s.LastWatchedEpisode
	}
	if s.NumberOfEpisodes > 0 {
		s.Progress = float64(watched) / float64(s.NumberOfEpisodes)
	}
	s.FullyWatched = s.NumberOfEpisodes > 0 && watched == s.NumberOfEpisodes
}

// AuditState is the snapshot written to the change log.
func (s *Season) AuditState() map[string]any {
	episodes := make(map[string]string, len(s.Episodes))
	for k, v := range s.Episodes {
		episodes[strconv.Itoa(k)] = v.String()
	}

	var lastWatched any
	if s.LastWatchedEpisode != nil {
		lastWatched = *s.LastWatchedEpisode
	}

	return map[string]any{
		"series":               s.SeriesID,
		"season_number":        s.SeasonNumber,
		"number_of_episodes":   s.NumberOfEpisodes,
		"last_watched_episode": lastWatched,
		"translation_start":    s.TranslationStart.String(),
		"translation_end":      s.TranslationEnd.String(),
		"episodes":             episodes,
	}
}

type SeasonStore struct {
	db dbinterface.Querier
}

func NewSeasonStore(db dbinterface.Querier) *SeasonStore {
	return &SeasonStore{db: db}
}

func (s *SeasonStore) Tx(q dbinterface.Querier) *SeasonStore {
	return &SeasonStore{db: q}
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// Create inserts a season and its episodes. It must run inside a write
// transaction.
func (s *SeasonStore) Create(ctx context.Context, season *Season) (*Season, error) {
	ts := now()

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO seasons (series_id, season_number, number_of_episodes, last_watched_episode,
			translation_start, translation_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		season.SeriesID,
		season.SeasonNumber,
		season.NumberOfEpisodes,
		nullableInt(season.LastWatchedEpisode),
		season.TranslationStart,
		season.TranslationEnd,
		ts,
		ts,
	).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrSeasonExists
		}
		if isForeignKeyConstraintError(err) {
			return nil, ErrSeriesNotFound
		}
		return nil, checkViolation(err, "season")
	}

	if err := s.replaceEpisodes(ctx, id, season.Episodes); err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *SeasonStore) replaceEpisodes(ctx context.Context, seasonID int, episodes map[int]Date) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM season_episodes WHERE season_id = ?`, seasonID); err != nil {
		return err
	}

	if len(episodes) == 0 {
		return nil
	}

	keys := make([]int, 0, len(episodes))
	for k := range episodes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	args := make([]any, 0, len(keys)*3)
	for _, ep := range keys {
		args = append(args, seasonID, ep, episodes[ep])
	}

	query := dbinterface.BuildQueryWithPlaceholders(
		`INSERT INTO season_episodes (season_id, episode_number, air_date) VALUES %s`, 3, len(keys))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

const seasonColumns = `id, series_id, season_number, number_of_episodes, last_watched_episode,
	translation_start, translation_end, created_at, updated_at`

func scanSeason(row rowScanner) (*Season, error) {
	var (
		season      Season
		lastWatched sql.NullInt64
	)
	err := row.Scan(
		&season.ID,
		&season.SeriesID,
		&season.SeasonNumber,
		&season.NumberOfEpisodes,
		&lastWatched,
		&season.TranslationStart,
		&season.TranslationEnd,
		&season.CreatedAt,
		&season.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastWatched.Valid {
		v := int(lastWatched.Int64)
		season.LastWatchedEpisode = &v
	}
	return &season, nil
}

func (s *SeasonStore) loadEpisodes(ctx context.Context, seasons ...*Season) error {
	for _, season := range seasons {
		rows, err := s.db.QueryContext(ctx,
			`SELECT episode_number, air_date FROM season_episodes WHERE season_id = ? ORDER BY episode_number`,
			season.ID)
		if err != nil {
			return err
		}

		season.Episodes = map[int]Date{}
		for rows.Next() {
			var (
				ep   int
				date Date
			)
			if err := rows.Scan(&ep, &date); err != nil {
				rows.Close()
				return err
			}
			season.Episodes[ep] = date
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		season.fillDerived()
	}
	return nil
}

func (s *SeasonStore) Get(ctx context.Context, id int) (*Season, error) {
	season, err := scanSeason(s.db.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM seasons WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}
	if err := s.loadEpisodes(ctx, season); err != nil {
		return nil, err
	}
	return season, nil
}

// GetForSeries returns the season only when it belongs to seriesID.
func (s *SeasonStore) GetForSeries(ctx context.Context, seriesID, id int) (*Season, error) {
	season, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if season.SeriesID != seriesID {
		return nil, ErrSeasonNotFound
	}
	return season, nil
}

func (s *SeasonStore) ListBySeries(ctx context.Context, seriesID int) ([]*Season, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+seasonColumns+` FROM seasons WHERE series_id = ? ORDER BY season_number`, seriesID)
	if err != nil {
		return nil, err
	}

	seasons := []*Season{}
	for rows.Next() {
		season, err := scanSeason(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		seasons = append(seasons, season)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := s.loadEpisodes(ctx, seasons...); err != nil {
		return nil, err
	}
	return seasons, nil
}

// Update replaces every mutable column and the episode map. It must run
// inside a write transaction.
func (s *SeasonStore) Update(ctx context.Context, season *Season) (*Season, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE seasons SET
			season_number = ?,
			number_of_episodes = ?,
			last_watched_episode = ?,
			translation_start = ?,
			translation_end = ?,
			updated_at = ?
		WHERE id = ?
	`,
		season.SeasonNumber,
		season.NumberOfEpisodes,
		nullableInt(season.LastWatchedEpisode),
		season.TranslationStart,
		season.TranslationEnd,
		now(),
		season.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrSeasonExists
		}
		return nil, checkViolation(err, "season")
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrSeasonNotFound
	}

	if err := s.replaceEpisodes(ctx, season.ID, season.Episodes); err != nil {
		return nil, err
	}

	return s.Get(ctx, season.ID)
}

func (s *SeasonStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seasons WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSeasonNotFound
	}
	return nil
}
