// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/autobrr/tvarchive/internal/dbinterface"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/pkg/hashutil"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

func extensionFor(contentType string) string {
	if ext, ok := imageExtensions[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

func (s *Service) ListImages(ctx context.Context, user *models.User, seriesID int) ([]*models.Image, error) {
	if _, _, err := s.loadSeries(ctx, s.db, user, seriesID, models.PermView); err != nil {
		return nil, err
	}
	return s.images.ListBySeries(ctx, seriesID)
}

// GetImage returns the image record together with the absolute file path.
func (s *Service) GetImage(ctx context.Context, user *models.User, seriesID, imageID int) (*models.Image, string, error) {
	if _, _, err := s.loadSeries(ctx, s.db, user, seriesID, models.PermView); err != nil {
		return nil, "", err
	}
	img, err := s.images.GetForSeries(ctx, seriesID, imageID)
	if err != nil {
		return nil, "", err
	}
	return img, s.imagePath(img.Path), nil
}

func (s *Service) imagePath(name string) string {
	return filepath.Join(s.imageDir, filepath.Base(name))
}

// UploadImage stores the content read from r and attaches it to the series.
// The content type is sniffed from the data and the header must decode as a
// supported image format.
func (s *Service) UploadImage(ctx context.Context, user *models.User, seriesID int, r io.Reader) (*models.Image, error) {
	if _, _, err := s.loadSeries(ctx, s.db, user, seriesID, models.PermChange); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, models.FieldError("image", "the submitted file is empty")
	}
	if int64(len(data)) > s.maxImageSize {
		return nil, models.FieldError("image", "file exceeds the maximum size of %d bytes", s.maxImageSize)
	}

	contentType := http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, models.FieldError("image", "upload a valid image, got %s", contentType)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, models.FieldError("image", "upload a valid image, the file is corrupted or in an unsupported format")
	}

	hash := hashutil.Sum(data)
	if exists, err := s.images.ExistsByHash(ctx, seriesID, hash); err != nil {
		return nil, err
	} else if exists {
		return nil, models.ErrImageExists
	}

	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return nil, err
	}
	name := uuid.NewString() + extensionFor(contentType)
	if err := os.WriteFile(s.imagePath(name), data, 0o644); err != nil {
		return nil, err
	}

	var created *models.Image
	err = s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		created, err = s.images.Tx(tx).Create(ctx, &models.Image{
			SeriesID:    seriesID,
			Path:        name,
			Hash:        hash,
			Size:        int64(len(data)),
			ContentType: contentType,
		})
		if err != nil {
			return err
		}
		return rec(entry(user, as, models.ContentImage, created.ID, models.OpCreate, created.AuditState()))
	})
	if err != nil {
		s.removeImageFile(name)
		return nil, err
	}

	log.Debug().Int("series", seriesID).Str("file", name).Int("size", len(data)).Msg("image stored")
	return created, nil
}

func (s *Service) DeleteImage(ctx context.Context, user *models.User, seriesID, imageID int) error {
	var path string
	err := s.mutate(ctx, func(tx dbinterface.TxQuerier, rec recordFunc) error {
		_, as, err := s.loadSeries(ctx, tx, user, seriesID, models.PermChange)
		if err != nil {
			return err
		}

		images := s.images.Tx(tx)
		img, err := images.GetForSeries(ctx, seriesID, imageID)
		if err != nil {
			return err
		}
		if err := images.Delete(ctx, imageID); err != nil {
			return err
		}
		path = img.Path
		return rec(entry(user, as, models.ContentImage, imageID, models.OpDelete, img.AuditState()))
	})
	if err != nil {
		return err
	}

	s.removeImageFile(path)
	return nil
}

func (s *Service) removeImageFile(name string) {
	if err := os.Remove(s.imagePath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("file", name).Msg("failed to remove image file")
	}
}

// PruneOrphanImages deletes files in the image directory that no image row
// references, e.g. leftovers of an interrupted upload.
func (s *Service) PruneOrphanImages(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.imageDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	known, err := s.images.ListPaths(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := known[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.imageDir, e.Name())); err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("failed to remove orphan image")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("files", removed).Msg("removed orphan image files")
	}
	return removed, nil
}
