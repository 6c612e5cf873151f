// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autobrr/tvarchive/internal/models"
)

type ExportDocument struct {
	Owner      string           `yaml:"owner"`
	ExportedAt time.Time        `yaml:"exported_at"`
	Series     []ExportSeries   `yaml:"series"`
	Groupings  []ExportGrouping `yaml:"groupings,omitempty"`
}

type ExportSeries struct {
	models.Series `yaml:",inline"`
	Seasons       []*models.Season `yaml:"seasons,omitempty"`
}

type ExportGrouping struct {
	Name   string   `yaml:"name"`
	Series []string `yaml:"series"`
}

// Export collects every series authored by user with its seasons, plus the
// user's groupings referenced by series name.
func (s *Service) Export(ctx context.Context, user *models.User) (*ExportDocument, error) {
	authored, err := s.series.ListByAuthor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	doc := &ExportDocument{
		Owner:      user.Username,
		ExportedAt: time.Now().UTC().Truncate(time.Second),
		Series:     make([]ExportSeries, 0, len(authored)),
	}

	names := make(map[int]string, len(authored))
	for _, series := range authored {
		seasons, err := s.seasons.ListBySeries(ctx, series.ID)
		if err != nil {
			return nil, fmt.Errorf("seasons of series %d: %w", series.ID, err)
		}
		names[series.ID] = series.Name
		doc.Series = append(doc.Series, ExportSeries{Series: *series, Seasons: seasons})
	}

	groupings, err := s.groupings.ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range groupings {
		eg := ExportGrouping{Name: g.Name, Series: []string{}}
		for _, id := range g.SeriesIDs {
			if name, ok := names[id]; ok {
				eg.Series = append(eg.Series, name)
				continue
			}
			if other, err := s.series.Get(ctx, id); err == nil {
				eg.Series = append(eg.Series, other.Name)
			}
		}
		doc.Groupings = append(doc.Groupings, eg)
	}

	return doc, nil
}

// ExportYAML writes the export document of user to w.
func (s *Service) ExportYAML(ctx context.Context, user *models.User, w io.Writer) error {
	doc, err := s.Export(ctx, user)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return enc.Close()
}
