// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/buildinfo"
	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/metrics/collector"
)

type Manager struct {
	registry         *prometheus.Registry
	archiveCollector *collector.ArchiveCollector
	Activity         *collector.ActivityCollector
}

// NewManager builds a registry with runtime, database and archive
// collectors. db and source may be nil.
func NewManager(db *database.DB, source collector.ArchiveSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(buildInfoGauge(buildinfo.Get()))

	if db != nil {
		registry.MustRegister(database.NewMetricsCollector(db))
	}

	archiveCollector := collector.NewArchiveCollector(source)
	registry.MustRegister(archiveCollector)

	activity := collector.NewActivityCollector(registry)

	log.Info().Bool("database", db != nil).Bool("archive", source != nil).Msg("Metrics manager initialized")

	return &Manager{
		registry:         registry,
		archiveCollector: archiveCollector,
		Activity:         activity,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// buildInfoGauge is a constant 1 labelled with the running build.
func buildInfoGauge(info buildinfo.Info) prometheus.Collector {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tvarchive_build_info",
		Help: "Build information of the running tvarchive binary",
		ConstLabels: prometheus.Labels{
			"version":    info.Version,
			"commit":     info.Commit,
			"go_version": info.GoVersion,
		},
	})
	gauge.Set(1)
	return gauge
}
