// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

// Grouping is a user-owned named collection of series.
type Grouping struct {
	ID        int       `json:"id"`
	OwnerID   int       `json:"owner"`
	Name      string    `json:"name"`
	SeriesIDs []int     `json:"series"`
	CreatedAt time.Time `json:"created_at"`
}

type GroupingInput struct {
	Name      *string `json:"name"`
	SeriesIDs *[]int  `json:"series"`
}

func ValidateGroupingName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", FieldError("name", "this field may not be blank")
	}
	if utf8.RuneCountInString(name) > 100 {
		return "", FieldError("name", "ensure this field has no more than 100 characters")
	}
	return name, nil
}

func (g *Grouping) AuditState() map[string]any {
	ids := append([]int(nil), g.SeriesIDs...)
	sort.Ints(ids)
	return map[string]any{
		"owner":  g.OwnerID,
		"name":   g.Name,
		"series": ids,
	}
}

type GroupingStore struct {
	db dbinterface.Querier
}

func NewGroupingStore(db dbinterface.Querier) *GroupingStore {
	return &GroupingStore{db: db}
}

func (s *GroupingStore) Tx(q dbinterface.Querier) *GroupingStore {
	return &GroupingStore{db: q}
}

func (s *GroupingStore) Create(ctx context.Context, ownerID int, name string, seriesIDs []int) (*Grouping, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groupings (owner_id, name, created_at) VALUES (?, ?, ?)
		RETURNING id
	`, ownerID, name, now()).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrGroupingExists
		}
		return nil, err
	}

	if err := s.replaceMembers(ctx, id, seriesIDs); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *GroupingStore) replaceMembers(ctx context.Context, groupingID int, seriesIDs []int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM grouping_series WHERE grouping_id = ?`, groupingID); err != nil {
		return err
	}

	seen := make(map[int]struct{}, len(seriesIDs))
	args := make([]any, 0, len(seriesIDs)*2)
	for _, seriesID := range seriesIDs {
		if _, ok := seen[seriesID]; ok {
			continue
		}
		seen[seriesID] = struct{}{}
		args = append(args, groupingID, seriesID)
	}
	if len(seen) == 0 {
		return nil
	}

	query := dbinterface.BuildQueryWithPlaceholders(
		`INSERT INTO grouping_series (grouping_id, series_id) VALUES %s`, 2, len(seen))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrSeriesNotFound
		}
		return err
	}
	return nil
}

func (s *GroupingStore) members(ctx context.Context, groupingID int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series_id FROM grouping_series WHERE grouping_id = ? ORDER BY series_id`, groupingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *GroupingStore) Get(ctx context.Context, id int) (*Grouping, error) {
	var g Grouping
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM groupings WHERE id = ?`, id,
	).Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupingNotFound
		}
		return nil, err
	}

	if g.SeriesIDs, err = s.members(ctx, g.ID); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *GroupingStore) ListByOwner(ctx context.Context, ownerID int) ([]*Grouping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, created_at FROM groupings WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}

	groupings := []*Grouping{}
	for rows.Next() {
		var g Grouping
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		groupings = append(groupings, &g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, g := range groupings {
		if g.SeriesIDs, err = s.members(ctx, g.ID); err != nil {
			return nil, err
		}
	}
	return groupings, nil
}

// Update renames the grouping and, when seriesIDs is non-nil, replaces its members.
func (s *GroupingStore) Update(ctx context.Context, id int, name string, seriesIDs []int) (*Grouping, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE groupings SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrGroupingExists
		}
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, ErrGroupingNotFound
	}

	if seriesIDs != nil {
		if err := s.replaceMembers(ctx, id, seriesIDs); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *GroupingStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groupings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrGroupingNotFound
	}
	return nil
}
