// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/autobrr/tvarchive/internal/dbinterface"
)

// Image is a file attached to a series. Path is relative to the image directory.
type Image struct {
	ID          int       `json:"id"`
	SeriesID    int       `json:"series"`
	Path        string    `json:"path"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (i *Image) AuditState() map[string]any {
	return map[string]any{
		"series":       i.SeriesID,
		"path":         i.Path,
		"hash":         i.Hash,
		"size":         i.Size,
		"content_type": i.ContentType,
	}
}

type ImageStore struct {
	db dbinterface.Querier
}

func NewImageStore(db dbinterface.Querier) *ImageStore {
	return &ImageStore{db: db}
}

func (s *ImageStore) Tx(q dbinterface.Querier) *ImageStore {
	return &ImageStore{db: q}
}

const imageColumns = `id, series_id, path, hash, size, content_type, created_at`

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	if err := row.Scan(&img.ID, &img.SeriesID, &img.Path, &img.Hash, &img.Size, &img.ContentType, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *ImageStore) Create(ctx context.Context, img *Image) (*Image, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO images (series_id, path, hash, size, content_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, img.SeriesID, img.Path, img.Hash, img.Size, img.ContentType, now()).Scan(&id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrImageExists
		}
		if isForeignKeyConstraintError(err) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ImageStore) Get(ctx context.Context, id int) (*Image, error) {
	img, err := scanImage(s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return img, nil
}

func (s *ImageStore) GetForSeries(ctx context.Context, seriesID, id int) (*Image, error) {
	img, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.SeriesID != seriesID {
		return nil, ErrImageNotFound
	}
	return img, nil
}

// ExistsByHash reports whether the series already has an image with this content hash.
func (s *ImageStore) ExistsByHash(ctx context.Context, seriesID int, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE series_id = ? AND hash = ?`, seriesID, hash).Scan(&count)
	return count > 0, err
}

func (s *ImageStore) ListBySeries(ctx context.Context, seriesID int) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE series_id = ? ORDER BY id`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ListPaths returns every stored image path. Used to reconcile the image
// directory with the database.
func (s *ImageStore) ListPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM images`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

func (s *ImageStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrImageNotFound
	}
	return nil
}
