// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	totals ArchiveTotals
	err    error
}

func (f fakeSource) ArchiveTotals(context.Context) (ArchiveTotals, error) {
	return f.totals, f.err
}

func TestArchiveCollector(t *testing.T) {
	t.Parallel()

	c := NewArchiveCollector(fakeSource{totals: ArchiveTotals{
		Users:          3,
		Series:         5,
		FinishedSeries: 2,
		Seasons:        9,
		Blacklisted:    1,
	}})

	expected := `
# HELP tvarchive_series Number of archived series by status
# TYPE tvarchive_series gauge
tvarchive_series{status="finished"} 2
tvarchive_series{status="running"} 3
# HELP tvarchive_users Number of registered, non-deleted users
# TYPE tvarchive_users gauge
tvarchive_users 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "tvarchive_series", "tvarchive_users"))
}

func TestArchiveCollector_ScrapeError(t *testing.T) {
	t.Parallel()

	c := NewArchiveCollector(ArchiveSourceFunc(func(context.Context) (ArchiveTotals, error) {
		return ArchiveTotals{}, errors.New("boom")
	}))

	expected := `
# HELP tvarchive_archive_scrape_errors 1 when the last archive scrape failed
# TYPE tvarchive_archive_scrape_errors gauge
tvarchive_archive_scrape_errors 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestActivityCollector(t *testing.T) {
	t.Parallel()

	var nilCollector *ActivityCollector
	nilCollector.ObserveRequest("GET", 200)
	nilCollector.ObserveMailJob("activation", "sent")

	m := NewActivityCollector(prometheus.NewRegistry())
	m.ObserveAuditEntry("series", "CREATE")
	m.ObserveAuditEntry("series", "CREATE")
	m.ObserveBlacklistReject("cidr")
	m.ObserveLoginBan()

	require.InDelta(t, 2, testutil.ToFloat64(m.AuditEntriesTotal.WithLabelValues("series", "CREATE")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.BlacklistRejectsTotal.WithLabelValues("cidr")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.BlacklistBansTotal), 0)
}
