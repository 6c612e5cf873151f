// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

type GrantInput struct {
	Username string   `json:"username"`
	Perms    []string `json:"perms"`
}

func (s *Service) ListPermissions(ctx context.Context, user *models.User, seriesID int) ([]models.Grant, error) {
	series, err := s.series.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeManage(ctx, s.db, user, series); err != nil {
		return nil, err
	}
	return s.perms.List(ctx, seriesID)
}

// resolveGrants turns the request into grants keyed by user id. Unknown or
// deleted users, unknown permissions and the author are rejected.
func (s *Service) resolveGrants(ctx context.Context, q dbinterface.Querier, series *models.Series, inputs []GrantInput) ([]models.Grant, error) {
	users := s.users.Tx(q)
	v := models.NewValidationError()

	byUser := map[int]int{}
	grants := []models.Grant{}
	for i, in := range inputs {
		field := fmt.Sprintf("grants.%d", i)

		username := strings.TrimSpace(in.Username)
		if username == "" {
			v.Add(field+".username", "this field is required")
			continue
		}
		grantee, err := users.GetByUsername(ctx, username)
		if errors.Is(err, models.ErrUserNotFound) {
			v.Add(field+".username", fmt.Sprintf("user %q does not exist", username))
			continue
		}
		if err != nil {
			return nil, err
		}
		if grantee.ID == series.EntryAuthorID {
			v.Add(field+".username", "the author of the series cannot be a grantee")
			continue
		}
		if len(in.Perms) == 0 {
			v.Add(field+".perms", "at least one permission is required")
			continue
		}

		perms := make([]models.Perm, 0, len(in.Perms))
		for _, raw := range in.Perms {
			perm, err := models.ParsePerm(strings.ToLower(strings.TrimSpace(raw)))
			if err != nil {
				v.Add(field+".perms", err.Error())
				continue
			}
			perms = append(perms, perm)
		}

		idx, ok := byUser[grantee.ID]
		if !ok {
			idx = len(grants)
			byUser[grantee.ID] = idx
			grants = append(grants, models.Grant{UserID: grantee.ID, Username: grantee.Username})
		}
		grants[idx].Perms = append(grants[idx].Perms, perms...)
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return grants, nil
}

// ReplacePermissions swaps the full grant set of a series and returns the
// stored result.
func (s *Service) ReplacePermissions(ctx context.Context, user *models.User, seriesID int, inputs []GrantInput) ([]models.Grant, error) {
	var result []models.Grant
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		series, err := s.series.Tx(tx).Get(ctx, seriesID)
		if err != nil {
			return err
		}
		as, err := s.authorizeManage(ctx, tx, user, series)
		if err != nil {
			return err
		}

		grants, err := s.resolveGrants(ctx, tx, series, inputs)
		if err != nil {
			return err
		}

		perms := s.perms.Tx(tx)
		before, err := perms.List(ctx, seriesID)
		if err != nil {
			return err
		}
		if err := perms.Replace(ctx, seriesID, grants); err != nil {
			return err
		}
		if result, err = perms.List(ctx, seriesID); err != nil {
			return err
		}

		diff := diffState(models.GrantState(before), models.GrantState(result))
		if len(diff) == 0 {
			return nil
		}
		return rec(entry(user, as, models.ContentPermission, seriesID, models.OpUpdate, diff))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
