// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

func (s *Service) ListGroupings(ctx context.Context, user *models.User) ([]*models.Grouping, error) {
	return s.groupings.ListByOwner(ctx, user.ID)
}

// groupingRole reports how user may act on grouping g. Groupings of other
// users are invisible to everyone but staff.
func groupingRole(user *models.User, g *models.Grouping) (models.AsWho, error) {
	switch {
	case g.OwnerID == user.ID:
		return models.AsAuthor, nil
	case user.IsAdmin():
		return models.AsStaff, nil
	default:
		return "", models.ErrGroupingNotFound
	}
}

func (s *Service) GetGrouping(ctx context.Context, user *models.User, id int) (*models.Grouping, error) {
	g, err := s.groupings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := groupingRole(user, g); err != nil {
		return nil, err
	}
	return g, nil
}

// checkMembers verifies the owner can see every series in ids.
func (s *Service) checkMembers(ctx context.Context, q dbinterface.Querier, owner *models.User, ids []int) error {
	v := models.NewValidationError()
	for _, id := range ids {
		_, _, err := s.loadSeries(ctx, q, owner, id, models.PermView)
		if errors.Is(err, models.ErrSeriesNotFound) {
			v.Add("series", fmt.Sprintf("invalid pk %d - object does not exist", id))
			continue
		}
		if err != nil {
			return err
		}
	}
	return v.OrNil()
}

func (s *Service) CreateGrouping(ctx context.Context, user *models.User, input models.GroupingInput) (*models.Grouping, error) {
	if input.Name == nil {
		return nil, models.FieldError("name", "this field is required")
	}
	name, err := models.ValidateGroupingName(*input.Name)
	if err != nil {
		return nil, err
	}
	var ids []int
	if input.SeriesIDs != nil {
		ids = *input.SeriesIDs
	}

	var created *models.Grouping
	err = s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		if err := s.checkMembers(ctx, tx, user, ids); err != nil {
			return err
		}

		created, err = s.groupings.Tx(tx).Create(ctx, user.ID, name, ids)
		if err != nil {
			return err
		}
		return rec(entry(user, models.AsAuthor, models.ContentGrouping, created.ID, models.OpCreate, created.AuditState()))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) UpdateGrouping(ctx context.Context, user *models.User, id int, input models.GroupingInput) (*models.Grouping, error) {
	var result *models.Grouping
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		groupings := s.groupings.Tx(tx)
		current, err := groupings.Get(ctx, id)
		if err != nil {
			return err
		}
		as, err := groupingRole(user, current)
		if err != nil {
			return err
		}

		next := *current
		if input.Name != nil {
			if next.Name, err = models.ValidateGroupingName(*input.Name); err != nil {
				return err
			}
		}

		var ids []int
		if input.SeriesIDs != nil {
			ids = append([]int{}, *input.SeriesIDs...)
			owner, err := s.users.Tx(tx).GetByID(ctx, current.OwnerID)
			if err != nil {
				return err
			}
			if err := s.checkMembers(ctx, tx, owner, ids); err != nil {
				return err
			}
			next.SeriesIDs = dedupe(ids)
		}

		diff := diffState(current.AuditState(), next.AuditState())
		if len(diff) == 0 {
			result = current
			return nil
		}

		result, err = groupings.Update(ctx, id, next.Name, ids)
		if err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentGrouping, id, models.OpUpdate, diff))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) DeleteGrouping(ctx context.Context, user *models.User, id int) error {
	return s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		groupings := s.groupings.Tx(tx)
		g, err := groupings.Get(ctx, id)
		if err != nil {
			return err
		}
		as, err := groupingRole(user, g)
		if err != nil {
			return err
		}
		if err := groupings.Delete(ctx, id); err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentGrouping, id, models.OpDelete, g.AuditState()))
	})
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
