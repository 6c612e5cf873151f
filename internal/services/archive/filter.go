// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/autobrr/tvarchive/internal/models"
)

const filterCacheTTL = 10 * time.Minute

// seriesEnv is the row a filter expression sees, e.g.
// `not is_finished and watched_episodes < 10 and author == "alice"`.
type seriesEnv struct {
	Name            string `expr:"name"`
	IsFinished      bool   `expr:"is_finished"`
	Seasons         int    `expr:"seasons"`
	WatchedEpisodes int    `expr:"watched_episodes"`
	TotalEpisodes   int    `expr:"total_episodes"`
	Author          string `expr:"author"`
	ImdbURL         string `expr:"imdb_url"`
}

func envFor(series *models.Series) seriesEnv {
	return seriesEnv{
		Name:            series.Name,
		IsFinished:      series.IsFinished,
		Seasons:         series.SeasonsCount,
		WatchedEpisodes: series.WatchedEpisodes,
		TotalEpisodes:   series.TotalEpisodes,
		Author:          series.AuthorUsername,
		ImdbURL:         series.ImdbURL,
	}
}

func newProgramCache() *ttlcache.Cache[string, *vm.Program] {
	return ttlcache.New(ttlcache.Options[string, *vm.Program]{}.SetDefaultTTL(filterCacheTTL))
}

// compileFilter compiles a boolean row filter. Compiled programs are cached
// by source text.
func (s *Service) compileFilter(source string) (*vm.Program, error) {
	if program, ok := s.programs.Get(source); ok {
		return program, nil
	}

	program, err := expr.Compile(source, expr.Env(seriesEnv{}), expr.AsBool())
	if err != nil {
		return nil, models.FieldError("expr", "invalid filter expression: %s", err.Error())
	}

	s.programs.Set(source, program, ttlcache.DefaultTTL)
	return program, nil
}
