// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"fmt"
	"sort"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

type Perm string

const (
	PermView   Perm = "view"
	PermChange Perm = "change"
	PermDelete Perm = "delete"
)

func ParsePerm(s string) (Perm, error) {
	switch Perm(s) {
	case PermView, PermChange, PermDelete:
		return Perm(s), nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

// Grant is the set of permissions one user holds on one series.
type Grant struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Perms    []Perm `json:"perms"`
}

type PermissionStore struct {
	db dbinterface.Querier
}

func NewPermissionStore(db dbinterface.Querier) *PermissionStore {
	return &PermissionStore{db: db}
}

func (s *PermissionStore) Tx(q dbinterface.Querier) *PermissionStore {
	return &PermissionStore{db: q}
}

// Has reports whether userID holds perm on seriesID. A change or delete
// grant implies view.
func (s *PermissionStore) Has(ctx context.Context, seriesID, userID int, perm Perm) (bool, error) {
	query := `SELECT COUNT(*) FROM series_permissions WHERE series_id = ? AND user_id = ? AND perm = ?`
	args := []any{seriesID, userID, string(perm)}
	if perm == PermView {
		query = `SELECT COUNT(*) FROM series_permissions WHERE series_id = ? AND user_id = ?`
		args = args[:2]
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns the grants on a series ordered by username.
func (s *PermissionStore) List(ctx context.Context, seriesID int) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, u.username, p.perm
		FROM series_permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.series_id = ?
		ORDER BY lower(u.username), p.perm
	`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []Grant{}
	index := map[int]int{}
	for rows.Next() {
		var (
			userID   int
			username string
			perm     string
		)
		if err := rows.Scan(&userID, &username, &perm); err != nil {
			return nil, err
		}
		i, ok := index[userID]
		if !ok {
			i = len(grants)
			index[userID] = i
			grants = append(grants, Grant{UserID: userID, Username: username})
		}
		grants[i].Perms = append(grants[i].Perms, Perm(perm))
	}
	return grants, rows.Err()
}

// Replace swaps the full grant set of a series. It must run inside a write
// transaction.
func (s *PermissionStore) Replace(ctx context.Context, seriesID int, grants []Grant) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM series_permissions WHERE series_id = ?`, seriesID); err != nil {
		return err
	}

	type row struct {
		userID int
		perm   Perm
	}
	seen := make(map[row]struct{})
	args := []any{}
	for _, g := range grants {
		for _, p := range g.Perms {
			r := row{userID: g.UserID, perm: p}
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			args = append(args, seriesID, g.UserID, string(p))
		}
	}
	if len(seen) == 0 {
		return nil
	}

	query := dbinterface.BuildQueryWithPlaceholders(
		`INSERT INTO series_permissions (series_id, user_id, perm) VALUES %s`, 3, len(seen))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyConstraintError(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// GrantState renders grants for the change log.
func GrantState(grants []Grant) map[string]any {
	state := make(map[string]any, len(grants))
	for _, g := range grants {
		perms := make([]string, 0, len(g.Perms))
		for _, p := range g.Perms {
			perms = append(perms, string(p))
		}
		sort.Strings(perms)
		state[g.Username] = perms
	}
	return state
}
