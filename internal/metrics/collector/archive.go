// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type ArchiveTotals struct {
	Users          int
	Series         int
	FinishedSeries int
	Seasons        int
	Blacklisted    int
}

// ArchiveSource reports the current archive size.
type ArchiveSource interface {
	ArchiveTotals(ctx context.Context) (ArchiveTotals, error)
}

// ArchiveSourceFunc adapts a function to ArchiveSource.
type ArchiveSourceFunc func(ctx context.Context) (ArchiveTotals, error)

func (f ArchiveSourceFunc) ArchiveTotals(ctx context.Context) (ArchiveTotals, error) {
	return f(ctx)
}

type ArchiveCollector struct {
	source ArchiveSource

	usersDesc        *prometheus.Desc
	seriesDesc       *prometheus.Desc
	seasonsDesc      *prometheus.Desc
	blacklistedDesc  *prometheus.Desc
	scrapeErrorsDesc *prometheus.Desc
}

func NewArchiveCollector(source ArchiveSource) *ArchiveCollector {
	return &ArchiveCollector{
		source: source,

		usersDesc: prometheus.NewDesc(
			"tvarchive_users",
			"Number of registered, non-deleted users",
			nil,
			nil,
		),
		seriesDesc: prometheus.NewDesc(
			"tvarchive_series",
			"Number of archived series by status",
			[]string{"status"},
			nil,
		),
		seasonsDesc: prometheus.NewDesc(
			"tvarchive_seasons",
			"Number of archived seasons",
			nil,
			nil,
		),
		blacklistedDesc: prometheus.NewDesc(
			"tvarchive_blacklisted_ips",
			"Number of currently blacklisted addresses",
			nil,
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"tvarchive_archive_scrape_errors",
			"1 when the last archive scrape failed",
			nil,
			nil,
		),
	}
}

func (c *ArchiveCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usersDesc
	ch <- c.seriesDesc
	ch <- c.seasonsDesc
	ch <- c.blacklistedDesc
	ch <- c.scrapeErrorsDesc
}

func (c *ArchiveCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("Archive source is nil, skipping metrics collection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	totals, err := c.source.ArchiveTotals(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect archive metrics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.GaugeValue, 0)

	ch <- prometheus.MustNewConstMetric(c.usersDesc, prometheus.GaugeValue, float64(totals.Users))
	ch <- prometheus.MustNewConstMetric(c.seriesDesc, prometheus.GaugeValue, float64(totals.FinishedSeries), "finished")
	ch <- prometheus.MustNewConstMetric(c.seriesDesc, prometheus.GaugeValue, float64(totals.Series-totals.FinishedSeries), "running")
	ch <- prometheus.MustNewConstMetric(c.seasonsDesc, prometheus.GaugeValue, float64(totals.Seasons))
	ch <- prometheus.MustNewConstMetric(c.blacklistedDesc, prometheus.GaugeValue, float64(totals.Blacklisted))
}
