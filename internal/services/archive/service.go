// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package archive implements the series archive: series, seasons, images,
// subtitles, groupings and per-series grants. Every mutation writes its
// change log entry inside the same transaction.
package archive

import (
	"context"
	"errors"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/metrics/collector"
	"github.com/autobrr/tvarchive/internal/models"
)

var ErrPermissionDenied = errors.New("you do not have permission to perform this action")

const defaultMaxImageSize = 10 << 20

type Options struct {
	// ImageDir receives uploaded image files.
	ImageDir     string
	MaxImageSize int64
	Metrics      *collector.ActivityCollector
}

type Service struct {
	db        dbinterface.TxBeginner
	users     *models.UserStore
	series    *models.SeriesStore
	seasons   *models.SeasonStore
	images    *models.ImageStore
	subtitles *models.SubtitleStore
	groupings *models.GroupingStore
	perms     *models.PermissionStore
	changes   *models.ChangeLogStore

	imageDir     string
	maxImageSize int64
	metrics      *collector.ActivityCollector
	programs     *ttlcache.Cache[string, *vm.Program]
}

func NewService(db dbinterface.TxBeginner, opts Options) *Service {
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = defaultMaxImageSize
	}

	return &Service{
		db:           db,
		users:        models.NewUserStore(db),
		series:       models.NewSeriesStore(db),
		seasons:      models.NewSeasonStore(db),
		images:       models.NewImageStore(db),
		subtitles:    models.NewSubtitleStore(db),
		groupings:    models.NewGroupingStore(db),
		perms:        models.NewPermissionStore(db),
		changes:      models.NewChangeLogStore(db),
		imageDir:     opts.ImageDir,
		maxImageSize: opts.MaxImageSize,
		metrics:      opts.Metrics,
		programs:     newProgramCache(),
	}
}

// ImageDir is the directory uploaded images are written to.
func (s *Service) ImageDir() string {
	return s.imageDir
}

// recordFunc appends a change log entry to the running transaction.
type recordFunc func(entry *models.ChangeLogEntry) error

// mutate runs fn in a write transaction. Entries recorded through rec are
// counted in metrics only once the transaction committed.
func (s *Service) mutate(ctx context.Context, fn func(tx dbinterface.TxQuerier, rec recordFunc) error) error {
	var recorded []*models.ChangeLogEntry

	err := s.db.WithTx(ctx, nil, func(tx dbinterface.TxQuerier) error {
		changes := s.changes.Tx(tx)
		rec := func(entry *models.ChangeLogEntry) error {
			if err := changes.Record(ctx, entry); err != nil {
				return err
			}
			recorded = append(recorded, entry)
			return nil
		}
		return fn(tx, rec)
	})
	if err != nil {
		return err
	}

	for _, entry := range recorded {
		s.metrics.ObserveAuditEntry(string(entry.ContentType), string(entry.Operation))
		log.Debug().
			Str("model", string(entry.ContentType)).
			Int("object", entry.ObjectID).
			Str("operation", string(entry.Operation)).
			Str("as", string(entry.AsWho)).
			Msg("change recorded")
	}
	return nil
}
