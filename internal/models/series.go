// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

const (
	SeriesNameMaxLength = 50
	imdbHost            = "www.imdb.com"
)

var imdbTitlePath = regexp.MustCompile(`^/title/(tt\d{7,10})/?$`)

// Series is a TV series entry. ResponsibleUserID is the author's master when
// the author is a slave, otherwise the author.
type Series struct {
	ID                int       `json:"id" yaml:"-"`
	Name              string    `json:"name" yaml:"name"`
	ImdbURL           string    `json:"imdb_url" yaml:"imdb_url"`
	IsFinished        bool      `json:"is_finished" yaml:"is_finished"`
	EntryAuthorID     int       `json:"entry_author" yaml:"-"`
	AuthorUsername    string    `json:"entry_author_username" yaml:"author"`
	ResponsibleUserID int       `json:"responsible_user" yaml:"-"`
	SeasonsCount      int       `json:"seasons_count" yaml:"-"`
	WatchedEpisodes   int       `json:"watched_episodes" yaml:"-"`
	TotalEpisodes     int       `json:"total_episodes" yaml:"-"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"updated_at"`
}

// AuditState is the snapshot written to the change log.
func (s *Series) AuditState() map[string]any {
	return map[string]any{
		"name":         s.Name,
		"imdb_url":     s.ImdbURL,
		"is_finished":  s.IsFinished,
		"entry_author": s.EntryAuthorID,
	}
}

type SeriesCreate struct {
	Name       string `json:"name"`
	ImdbURL    string `json:"imdb_url"`
	IsFinished bool   `json:"is_finished"`
}

type SeriesUpdate struct {
	Name       *string `json:"name"`
	ImdbURL    *string `json:"imdb_url"`
	IsFinished *bool   `json:"is_finished"`
}

// SeriesVisibility describes who is looking at the archive.
type SeriesVisibility struct {
	ViewerID       int
	ViewerMasterID *int
	ViewerIsStaff  bool
}

func VisibilityFor(u *User) SeriesVisibility {
	return SeriesVisibility{
		ViewerID:       u.ID,
		ViewerMasterID: u.MasterID,
		ViewerIsStaff:  u.IsAdmin(),
	}
}

type SeriesFilter struct {
	Visibility     SeriesVisibility
	Name           string
	IsFinished     *bool
	AuthorUsername string
	ImdbURL        string
	IDs            []int
	Ordering       string
	Limit          int
	Offset         int
}

var seriesOrderings = map[string]string{
	"name":     "s.name ASC, s.id ASC",
	"-name":    "s.name DESC, s.id DESC",
	"created":  "s.created_at ASC, s.id ASC",
	"-created": "s.created_at DESC, s.id DESC",
	"id":       "s.id ASC",
	"-id":      "s.id DESC",
}

// ValidSeriesOrdering reports whether ordering is accepted by List.
func ValidSeriesOrdering(ordering string) bool {
	_, ok := seriesOrderings[ordering]
	return ordering == "" || ok
}

// NormalizeImdbURL validates an IMDb title URL and returns its canonical form
// https://www.imdb.com/title/ttNNNNNNN/.
func NormalizeImdbURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", FieldError("imdb_url", "this field is required")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", FieldError("imdb_url", "enter a valid URL")
	}

	host := strings.ToLower(u.Host)
	if host != imdbHost && host != "imdb.com" && host != "m.imdb.com" {
		return "", FieldError("imdb_url", "URL must point to imdb.com")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", FieldError("imdb_url", "URL must use http or https")
	}

	m := imdbTitlePath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", FieldError("imdb_url", "URL must be an IMDb title page like https://www.imdb.com/title/tt0903747/")
	}

	return "https://" + imdbHost + "/title/" + m[1] + "/", nil
}

// ValidateSeriesName trims and checks a series name.
func ValidateSeriesName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", FieldError("name", "this field is required")
	}
	if len([]rune(name)) > SeriesNameMaxLength {
		return "", FieldError("name", "ensure this field has no more than %d characters", SeriesNameMaxLength)
	}
	return name, nil
}

const seriesSelect = `
	SELECT s.id, s.name, s.imdb_url, s.is_finished, s.entry_author_id, a.username,
		COALESCE(a.master_id, a.id),
		(SELECT COUNT(*) FROM seasons se WHERE se.series_id = s.id),
		(SELECT COALESCE(SUM(COALESCE(se.last_watched_episode, 0)), 0) FROM seasons se WHERE se.series_id = s.id),
		(SELECT COALESCE(SUM(se.number_of_episodes), 0) FROM seasons se WHERE se.series_id = s.id),
		s.created_at, s.updated_at
	FROM series s
	JOIN users a ON a.id = s.entry_author_id
`

func scanSeries(row rowScanner) (*Series, error) {
	var s Series
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.ImdbURL,
		&s.IsFinished,
		&s.EntryAuthorID,
		&s.AuthorUsername,
		&s.ResponsibleUserID,
		&s.SeasonsCount,
		&s.WatchedEpisodes,
		&s.TotalEpisodes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type SeriesStore struct {
	db dbinterface.Querier
}

func NewSeriesStore(db dbinterface.Querier) *SeriesStore {
	return &SeriesStore{db: db}
}

func (s *SeriesStore) Tx(q dbinterface.Querier) *SeriesStore {
	return &SeriesStore{db: q}
}

// Create inserts a series authored by authorID. It must run inside a write
// transaction. Name and URL are expected to be validated already.
func (s *SeriesStore) Create(ctx context.Context, authorID int, create SeriesCreate) (*Series, error) {
	ts := now()

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO series (name, imdb_url, is_finished, entry_author_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, create.Name, create.ImdbURL, create.IsFinished, authorID, ts, ts).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrImdbURLTaken
		}
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *SeriesStore) Get(ctx context.Context, id int) (*Series, error) {
	series, err := scanSeries(s.db.QueryRowContext(ctx, seriesSelect+` WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	return series, nil
}

// visibilityClause restricts results to series the viewer may see: own
// entries, entries of their slaves, entries of their master, and series with
// an explicit grant. Staff see everything.
func visibilityClause(v SeriesVisibility) (string, []any) {
	if v.ViewerIsStaff {
		return "1 = 1", nil
	}

	clauses := []string{
		"s.entry_author_id = ?",
		"a.master_id = ?",
		"EXISTS (SELECT 1 FROM series_permissions p WHERE p.series_id = s.id AND p.user_id = ?)",
	}
	args := []any{v.ViewerID, v.ViewerID, v.ViewerID}

	if v.ViewerMasterID != nil {
		clauses = append(clauses, "s.entry_author_id = ?")
		args = append(args, *v.ViewerMasterID)
	}

	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// List returns visible series matching the filter and the total match count.
// Limit <= 0 returns every match.
func (s *SeriesStore) List(ctx context.Context, filter SeriesFilter) ([]*Series, int, error) {
	visSQL, args := visibilityClause(filter.Visibility)
	where := []string{visSQL}

	if name := strings.TrimSpace(filter.Name); name != "" {
		clause, arg := dbinterface.ContainsLike("s.name", name)
		where = append(where, clause)
		args = append(args, arg)
	}
	if filter.IsFinished != nil {
		where = append(where, "s.is_finished = ?")
		args = append(args, *filter.IsFinished)
	}
	if author := strings.TrimSpace(filter.AuthorUsername); author != "" {
		where = append(where, "lower(a.username) = lower(?)")
		args = append(args, author)
	}
	if imdb := strings.TrimSpace(filter.ImdbURL); imdb != "" {
		where = append(where, "s.imdb_url = ?")
		args = append(args, imdb)
	}
	if len(filter.IDs) > 0 {
		for _, id := range filter.IDs {
			args = append(args, id)
		}
		where = append(where, dbinterface.InClause("s.id", len(filter.IDs)))
	}

	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM series s JOIN users a ON a.id = s.entry_author_id`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy, ok := seriesOrderings[filter.Ordering]
	if !ok {
		orderBy = seriesOrderings["name"]
	}

	query := seriesSelect + whereSQL + " ORDER BY " + orderBy
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []*Series{}
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, series)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// ListByAuthor returns every series authored by userID ordered by name.
func (s *SeriesStore) ListByAuthor(ctx context.Context, userID int) ([]*Series, error) {
	rows, err := s.db.QueryContext(ctx, seriesSelect+` WHERE s.entry_author_id = ? ORDER BY s.name, s.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Series{}
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, series)
	}
	return list, rows.Err()
}

// Update applies the non-nil fields. Values are expected to be validated.
func (s *SeriesStore) Update(ctx context.Context, id int, update SeriesUpdate) (*Series, error) {
	sets := []string{}
	args := []any{}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.ImdbURL != nil {
		sets = append(sets, "imdb_url = ?")
		args = append(args, *update.ImdbURL)
	}
	if update.IsFinished != nil {
		sets = append(sets, "is_finished = ?")
		args = append(args, *update.IsFinished)
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE series SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrImdbURLTaken
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrSeriesNotFound
	}

	return s.Get(ctx, id)
}

func (s *SeriesStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSeriesNotFound
	}
	return nil
}

// Totals returns archive-wide counters for metrics.
func (s *SeriesStore) Totals(ctx context.Context) (series, seasons, finished int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM series),
			(SELECT COUNT(*) FROM seasons),
			(SELECT COUNT(*) FROM series WHERE is_finished = ?)
	`, true).Scan(&series, &seasons, &finished)
	return series, seasons, finished, err
}
