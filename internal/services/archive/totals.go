// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"

	"github.com/autobrr/tvarchive/internal/metrics/collector"
)

// ArchiveTotals feeds the archive metrics collector. Blacklisted is left
// for the blacklist service to fill in.
func (s *Service) ArchiveTotals(ctx context.Context) (collector.ArchiveTotals, error) {
	var totals collector.ArchiveTotals

	users, err := s.users.Count(ctx)
	if err != nil {
		return totals, err
	}
	series, seasons, finished, err := s.series.Totals(ctx)
	if err != nil {
		return totals, err
	}
	totals.Users = users
	totals.Series = series
	totals.Seasons = seasons
	totals.FinishedSeries = finished
	return totals, nil
}
