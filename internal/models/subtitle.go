// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

var languageCode = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,4})?$`)

type Subtitle struct {
	ID            int       `json:"id"`
	SeasonID      int       `json:"season"`
	EpisodeNumber int       `json:"episode_number"`
	Language      string    `json:"language"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

type SubtitleCreate struct {
	EpisodeNumber int    `json:"episode_number"`
	Language      string `json:"language"`
	Text          string `json:"text"`
}

// Validate checks the subtitle against the season it is attached to.
func (c *SubtitleCreate) Validate(season *Season) error {
	v := NewValidationError()

	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	if !languageCode.MatchString(c.Language) {
		v.Add("language", "enter a valid language code such as \"en\" or \"pt-br\"")
	}
	if c.EpisodeNumber < 1 || c.EpisodeNumber > season.NumberOfEpisodes {
		v.Add("episode_number", fmt.Sprintf("episode number must be between 1 and %d", season.NumberOfEpisodes))
	}
	if strings.TrimSpace(c.Text) == "" {
		v.Add("text", "this field may not be blank")
	}

	return v.OrNil()
}

func (s *Subtitle) AuditState() map[string]any {
	return map[string]any{
		"season":         s.SeasonID,
		"episode_number": s.EpisodeNumber,
		"language":       s.Language,
		"text_length":    len(s.Text),
	}
}

type SubtitleStore struct {
	db dbinterface.Querier
}

func NewSubtitleStore(db dbinterface.Querier) *SubtitleStore {
	return &SubtitleStore{db: db}
}

func (s *SubtitleStore) Tx(q dbinterface.Querier) *SubtitleStore {
	return &SubtitleStore{db: q}
}

const subtitleColumns = `id, season_id, episode_number, language, text, created_at`

func scanSubtitle(row rowScanner) (*Subtitle, error) {
	var sub Subtitle
	if err := row.Scan(&sub.ID, &sub.SeasonID, &sub.EpisodeNumber, &sub.Language, &sub.Text, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *SubtitleStore) Create(ctx context.Context, seasonID int, create SubtitleCreate) (*Subtitle, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subtitles (season_id, episode_number, language, text, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, seasonID, create.EpisodeNumber, create.Language, create.Text, now()).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrSubtitleExists
		}
		if isForeignKeyConstraintError(err) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SubtitleStore) Get(ctx context.Context, id int) (*Subtitle, error) {
	sub, err := scanSubtitle(s.db.QueryRowContext(ctx, `SELECT `+subtitleColumns+` FROM subtitles WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubtitleNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubtitleStore) GetForSeason(ctx context.Context, seasonID, id int) (*Subtitle, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.SeasonID != seasonID {
		return nil, ErrSubtitleNotFound
	}
	return sub, nil
}

// ListBySeason returns subtitles ordered by episode then language. A
// language filter of "" matches all.
func (s *SubtitleStore) ListBySeason(ctx context.Context, seasonID int, language string) ([]*Subtitle, error) {
	query := `SELECT ` + subtitleColumns + ` FROM subtitles WHERE season_id = ?`
	args := []any{seasonID}
	if language != "" {
		query += ` AND language = ?`
		args = append(args, strings.ToLower(language))
	}
	query += ` ORDER BY episode_number, language`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []*Subtitle{}
	for rows.Next() {
		sub, err := scanSubtitle(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// MaxEpisode returns the highest episode number with a subtitle, or 0.
func (s *SubtitleStore) MaxEpisode(ctx context.Context, seasonID int) (int, error) {
	var episode int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(episode_number), 0) FROM subtitles WHERE season_id = ?`, seasonID).Scan(&episode)
	return episode, err
}

func (s *SubtitleStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subtitles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubtitleNotFound
	}
	return nil
}
