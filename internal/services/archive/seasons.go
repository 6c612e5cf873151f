// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

func (s *Service) ListSeasons(ctx context.Context, user *models.User, seriesID int) ([]*models.Season, error) {
	if _, _, err := s.loadSeries(ctx, s.db, user, seriesID, models.PermView); err != nil {
		return nil, err
	}
	return s.seasons.ListBySeries(ctx, seriesID)
}

func (s *Service) GetSeason(ctx context.Context, user *models.User, seriesID, seasonID int) (*models.Season, error) {
	if _, _, err := s.loadSeries(ctx, s.db, user, seriesID, models.PermView); err != nil {
		return nil, err
	}
	return s.seasons.GetForSeries(ctx, seriesID, seasonID)
}

func (s *Service) CreateSeason(ctx context.Context, user *models.User, seriesID int, create models.SeasonCreate) (*models.Season, error) {
	season := create.Season(seriesID)
	if err := season.Validate(); err != nil {
		return nil, err
	}

	var created *models.Season
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		created, err = s.seasons.Tx(tx).Create(ctx, season)
		if err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSeason, created.ID, models.OpCreate, created.AuditState()))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateSeason merges update into the stored season and validates the
// result as a whole before saving it.
func (s *Service) UpdateSeason(ctx context.Context, user *models.User, seriesID, seasonID int, update models.SeasonUpdate) (*models.Season, error) {
	var result *models.Season
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		seasons := s.seasons.Tx(tx)
		current, err := seasons.GetForSeries(ctx, seriesID, seasonID)
		if err != nil {
			return err
		}

		next := update.Apply(current)
		if err := next.Validate(); err != nil {
			return err
		}
		if next.NumberOfEpisodes < current.NumberOfEpisodes {
			maxEpisode, err := s.subtitles.Tx(tx).MaxEpisode(ctx, seasonID)
			if err != nil {
				return err
			}
			if next.NumberOfEpisodes < maxEpisode {
				return models.FieldError("number_of_episodes", "season has subtitles up to episode %d", maxEpisode)
			}
		}

		diff := diffState(current.AuditState(), next.AuditState())
		if len(diff) == 0 {
			result = current
			return nil
		}

		result, err = seasons.Update(ctx, next)
		if err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSeason, seasonID, models.OpUpdate, diff))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) DeleteSeason(ctx context.Context, user *models.User, seriesID, seasonID int) error {
	return s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		seasons := s.seasons.Tx(tx)
		season, err := seasons.GetForSeries(ctx, seriesID, seasonID)
		if err != nil {
			return err
		}
		if err := seasons.Delete(ctx, seasonID); err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSeason, seasonID, models.OpDelete, season.AuditState()))
	})
}
