// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"errors"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

// relation is the actor's standing towards a series author.
type relation struct {
	author bool
	master bool
	slave  bool
	staff  bool
}

func relate(user *models.User, series *models.Series) relation {
	author := series.EntryAuthorID == user.ID
	return relation{
		author: author,
		master: !author && series.ResponsibleUserID == user.ID,
		slave:  user.MasterID != nil && *user.MasterID == series.EntryAuthorID,
		staff:  user.IsAdmin(),
	}
}

// authorize resolves whether user holds perm on series and in which role.
// A series the user cannot even see reports ErrSeriesNotFound.
func (s *Service) authorize(ctx context.Context, q dbinterface.Querier, user *models.User, series *models.Series, perm models.Perm) (models.AsWho, error) {
	r := relate(user, series)
	switch {
	case r.author:
		return models.AsAuthor, nil
	case r.master:
		return models.AsMaster, nil
	case r.slave && perm == models.PermView:
		return models.AsSlave, nil
	}

	perms := s.perms.Tx(q)
	granted, err := perms.Has(ctx, series.ID, user.ID, perm)
	if err != nil {
		return "", err
	}
	if granted {
		return models.AsGrantee, nil
	}
	if r.staff {
		return models.AsStaff, nil
	}

	if perm == models.PermView {
		return "", models.ErrSeriesNotFound
	}
	if r.slave {
		return "", ErrPermissionDenied
	}
	visible, err := perms.Has(ctx, series.ID, user.ID, models.PermView)
	if err != nil {
		return "", err
	}
	if !visible {
		return "", models.ErrSeriesNotFound
	}
	return "", ErrPermissionDenied
}

// authorizeManage allows managing grants to the author, the author's master
// and staff.
func (s *Service) authorizeManage(ctx context.Context, q dbinterface.Querier, user *models.User, series *models.Series) (models.AsWho, error) {
	r := relate(user, series)
	switch {
	case r.author:
		return models.AsAuthor, nil
	case r.master:
		return models.AsMaster, nil
	case r.staff:
		return models.AsStaff, nil
	}
	if _, err := s.authorize(ctx, q, user, series, models.PermView); err != nil {
		return "", err
	}
	return "", ErrPermissionDenied
}

// loadSeries fetches a series and checks perm in one step.
func (s *Service) loadSeries(ctx context.Context, q dbinterface.Querier, user *models.User, seriesID int, perm models.Perm) (*models.Series, models.AsWho, error) {
	series, err := s.series.Tx(q).Get(ctx, seriesID)
	if err != nil {
		return nil, "", err
	}
	as, err := s.authorize(ctx, q, user, series, perm)
	if err != nil {
		return nil, "", err
	}
	return series, as, nil
}

// Can reports whether user holds perm on the series.
func (s *Service) Can(ctx context.Context, user *models.User, seriesID int, perm models.Perm) (bool, error) {
	_, _, err := s.loadSeries(ctx, s.db, user, seriesID, perm)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, models.ErrSeriesNotFound):
		return false, nil
	default:
		return false, err
	}
}

func entry(user *models.User, as models.AsWho, kind models.ContentType, objectID int, op models.Operation, state map[string]any) *models.ChangeLogEntry {
	userID := user.ID
	return &models.ChangeLogEntry{
		ContentType: kind,
		ObjectID:    objectID,
		UserID:      &userID,
		Username:    user.Username,
		AsWho:       as,
		Operation:   op,
		State:       state,
	}
}
