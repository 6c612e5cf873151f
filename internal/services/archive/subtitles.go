// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

// ListSubtitles returns the subtitles of a season, optionally narrowed to
// one language.
func (s *Service) ListSubtitles(ctx context.Context, user *models.User, seriesID, seasonID int, language string) ([]*models.Subtitle, error) {
	if _, err := s.GetSeason(ctx, user, seriesID, seasonID); err != nil {
		return nil, err
	}
	return s.subtitles.ListBySeason(ctx, seasonID, language)
}

func (s *Service) CreateSubtitle(ctx context.Context, user *models.User, seriesID, seasonID int, create models.SubtitleCreate) (*models.Subtitle, error) {
	var created *models.Subtitle
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		season, err := s.seasons.Tx(tx).GetForSeries(ctx, seriesID, seasonID)
		if err != nil {
			return err
		}
		if err := create.Validate(season); err != nil {
			return err
		}

		created, err = s.subtitles.Tx(tx).Create(ctx, seasonID, create)
		if err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSubtitle, created.ID, models.OpCreate, created.AuditState()))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) DeleteSubtitle(ctx context.Context, user *models.User, seriesID, seasonID, subtitleID int) error {
	return s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}
		if _, err := s.seasons.Tx(tx).GetForSeries(ctx, seriesID, seasonID); err != nil {
			return err
		}

		subtitles := s.subtitles.Tx(tx)
		sub, err := subtitles.GetForSeason(ctx, seasonID, subtitleID)
		if err != nil {
			return err
		}
		if err := subtitles.Delete(ctx, subtitleID); err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSubtitle, subtitleID, models.OpDelete, sub.AuditState()))
	})
}
