// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/pkg/stringutils"
)

type ListOptions struct {
	Name       string
	IsFinished *bool
	Author     string
	ImdbURL    string
	Ordering   string
	// Expr is a boolean expression evaluated against every matching row.
	Expr   string
	Limit  int
	Offset int
}

func (s *Service) ListSeries(ctx context.Context, user *models.User, opts ListOptions) ([]*models.Series, int, error) {
	if !models.ValidSeriesOrdering(opts.Ordering) {
		return nil, 0, models.FieldError("ordering", "unknown ordering %q", opts.Ordering)
	}

	filter := models.SeriesFilter{
		Visibility:     models.VisibilityFor(user),
		Name:           opts.Name,
		IsFinished:     opts.IsFinished,
		AuthorUsername: opts.Author,
		Ordering:       opts.Ordering,
		Limit:          opts.Limit,
		Offset:         opts.Offset,
	}
	if raw := strings.TrimSpace(opts.ImdbURL); raw != "" {
		if normalized, err := models.NormalizeImdbURL(raw); err == nil {
			filter.ImdbURL = normalized
		} else {
			filter.ImdbURL = raw
		}
	}

	if strings.TrimSpace(opts.Expr) == "" {
		return s.series.List(ctx, filter)
	}

	program, err := s.compileFilter(opts.Expr)
	if err != nil {
		return nil, 0, err
	}

	filter.Limit, filter.Offset = 0, 0
	all, _, err := s.series.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*models.Series, 0, len(all))
	for _, series := range all {
		out, err := expr.Run(program, envFor(series))
		if err != nil {
			return nil, 0, models.FieldError("expr", "%s", err.Error())
		}
		if ok, _ := out.(bool); ok {
			matched = append(matched, series)
		}
	}

	return paginate(matched, opts.Limit, opts.Offset), len(matched), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SearchResult pairs a series with its fuzzy match distance.
type SearchResult struct {
	*models.Series
	Distance int `json:"distance"`
}

// SearchSeries ranks visible series whose names fuzzily contain query.
func (s *Service) SearchSeries(ctx context.Context, user *models.User, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.FieldError("q", "this field is required")
	}

	visible, _, err := s.series.List(ctx, models.SeriesFilter{Visibility: models.VisibilityFor(user)})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(visible))
	for i, series := range visible {
		names[i] = stringutils.NormalizeTitle(series.Name)
	}

	ranks := fuzzy.RankFind(stringutils.NormalizeTitle(query), names)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})

	results := make([]SearchResult, 0, len(ranks))
	for _, rank := range ranks {
		results = append(results, SearchResult{Series: visible[rank.OriginalIndex], Distance: rank.Distance})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *Service) GetSeries(ctx context.Context, user *models.User, id int) (*models.Series, error) {
	series, _, err := s.loadSeries(ctx, s.db, user, id, models.PermView)
	return series, err
}

func validateSeriesCreate(create *models.SeriesCreate) error {
	v := models.NewValidationError()

	name, err := models.ValidateSeriesName(create.Name)
	if err != nil {
		mergeInto(v, err)
	}
	create.Name = name

	url, err := models.NormalizeImdbURL(create.ImdbURL)
	if err != nil {
		mergeInto(v, err)
	}
	create.ImdbURL = url

	return v.OrNil()
}

func mergeInto(v *models.ValidationError, err error) {
	var fe *models.ValidationError
	if errors.As(err, &fe) {
		for field, messages := range fe.Fields {
			for _, msg := range messages {
				v.Add(field, msg)
			}
		}
		return
	}
	v.Add("non_field_errors", err.Error())
}

func (s *Service) CreateSeries(ctx context.Context, user *models.User, create models.SeriesCreate) (*models.Series, error) {
	if err := validateSeriesCreate(&create); err != nil {
		return nil, err
	}

	var created *models.Series
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		series, err := s.series.Tx(tx).Create(ctx, user.ID, create)
		if err != nil {
			return err
		}
		created = series
		return rec(entry(user, models.AsAuthor, models.ContentSeries, series.ID, models.OpCreate, series.AuditState()))
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validateSeriesUpdate(update *models.SeriesUpdate) error {
	v := models.NewValidationError()

	if update.Name != nil {
		name, err := models.ValidateSeriesName(*update.Name)
		if err != nil {
			mergeInto(v, err)
		}
		update.Name = &name
	}
	if update.ImdbURL != nil {
		url, err := models.NormalizeImdbURL(*update.ImdbURL)
		if err != nil {
			mergeInto(v, err)
		}
		update.ImdbURL = &url
	}

	return v.OrNil()
}

// UpdateSeries applies a partial update. A request that changes nothing
// leaves the row and the change log untouched.
func (s *Service) UpdateSeries(ctx context.Context, user *models.User, id int, update models.SeriesUpdate) (*models.Series, error) {
	if err := validateSeriesUpdate(&update); err != nil {
		return nil, err
	}

	var result *models.Series
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		current, as, err := s.loadSeries(ctx, tx, user, id, models.PermChange)
		if err != nil {
			return err
		}

		next := *current
		if update.Name != nil {
			next.Name = *update.Name
		}
		if update.ImdbURL != nil {
			next.ImdbURL = *update.ImdbURL
		}
		if update.IsFinished != nil {
			next.IsFinished = *update.IsFinished
		}

		diff := diffState(current.AuditState(), next.AuditState())
		if len(diff) == 0 {
			result = current
			return nil
		}

		updated, err := s.series.Tx(tx).Update(ctx, id, update)
		if err != nil {
			return err
		}
		result = updated
		return rec(entry(user, as, models.ContentSeries, id, models.OpUpdate, diff))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSeries removes the series with its seasons, subtitles, images and
// grants. Image files are removed once the rows are gone.
func (s *Service) DeleteSeries(ctx context.Context, user *models.User, id int) error {
	var files []string
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		series, as, err := s.loadSeries(ctx, tx, user, id, models.PermDelete)
		if err != nil {
			return err
		}

		images, err := s.images.Tx(tx).ListBySeries(ctx, id)
		if err != nil {
			return err
		}
		for _, img := range images {
			files = append(files, img.Path)
		}

		if err := s.series.Tx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentSeries, id, models.OpDelete, series.AuditState()))
	})
	if err != nil {
		return err
	}

	for _, path := range files {
		s.removeImageFile(path)
	}
	return nil
}
