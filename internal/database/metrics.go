// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes connection pool statistics of a DB.
type MetricsCollector struct {
	db *DB

	openConnsDesc *prometheus.Desc
	inUseDesc     *prometheus.Desc
	waitCountDesc *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	return &MetricsCollector{
		db: db,
		openConnsDesc: prometheus.NewDesc(
			"tvarchive_db_open_connections",
			"Number of established connections to the database",
			[]string{"dialect"},
			nil,
		),
		inUseDesc: prometheus.NewDesc(
			"tvarchive_db_in_use_connections",
			"Number of database connections currently in use",
			[]string{"dialect"},
			nil,
		),
		waitCountDesc: prometheus.NewDesc(
			"tvarchive_db_wait_count_total",
			"Total number of connections waited for",
			[]string{"dialect"},
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openConnsDesc
	ch <- c.inUseDesc
	ch <- c.waitCountDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil || c.db.conn == nil {
		return
	}

	stats := c.db.conn.Stats()
	dialect := c.db.Dialect()

	ch <- prometheus.MustNewConstMetric(c.openConnsDesc, prometheus.GaugeValue, float64(stats.OpenConnections), dialect)
	ch <- prometheus.MustNewConstMetric(c.inUseDesc, prometheus.GaugeValue, float64(stats.InUse), dialect)
	ch <- prometheus.MustNewConstMetric(c.waitCountDesc, prometheus.CounterValue, float64(stats.WaitCount), dialect)
}
