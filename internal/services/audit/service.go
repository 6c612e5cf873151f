// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package audit reads and prunes the change log written by the archive
// service.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page is one slice of a newest-first listing. NextOffset is nil on the last
// page.
type Page struct {
	Count      int                      `json:"count"`
	NextOffset *int                     `json:"next_offset"`
	Results    []*models.ChangeLogEntry `json:"results"`
}

type Service struct {
	changes *models.ChangeLogStore
	now     func() time.Time
}

func NewService(db dbinterface.Querier) *Service {
	return &Service{
		changes: models.NewChangeLogStore(db),
		now:     time.Now,
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func newPage(entries []*models.ChangeLogEntry, total, limit, offset int) *Page {
	page := &Page{Count: total, Results: entries}
	if next := offset + len(entries); next < total && len(entries) == limit {
		page.NextOffset = &next
	}
	return page
}

// History lists the entries of one object.
func (s *Service) History(ctx context.Context, kind models.ContentType, objectID, limit, offset int) (*Page, error) {
	limit, offset = clampPage(limit, offset)
	entries, total, err := s.changes.History(ctx, kind, objectID, limit, offset)
	if err != nil {
		return nil, err
	}
	return newPage(entries, total, limit, offset), nil
}

// Logs lists entries across objects. The filter's Limit and Offset are
// clamped to sane bounds.
func (s *Service) Logs(ctx context.Context, filter models.ChangeLogFilter) (*Page, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	entries, total, err := s.changes.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newPage(entries, total, filter.Limit, filter.Offset), nil
}

func (s *Service) Get(ctx context.Context, id int) (*models.ChangeLogEntry, error) {
	return s.changes.Get(ctx, id)
}

// Purge removes entries older than the retention period. A non-positive
// retention keeps everything.
func (s *Service) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	removed, err := s.changes.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("entries", removed).Time("cutoff", cutoff).Msg("purged change log")
	}
	return removed, nil
}

// Run purges periodically until ctx is cancelled. retention is read on each
// tick so config reloads apply without a restart.
func (s *Service) Run(ctx context.Context, interval time.Duration, retention func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Purge(ctx, retention()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("failed to purge change log")
			}
		}
	}
}
