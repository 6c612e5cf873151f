// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
	"github.com/autobrr/tvarchive/internal/services/imdb"
)

const (
	defaultSeriesPageSize = 50
	maxSeriesPageSize     = 500
	defaultSearchLimit    = 20
	// multipart overhead allowed on top of the image size limit
	uploadSlack = 1 << 20
)

type ArchiveHandler struct {
	archive      *archive.Service
	imdb         *imdb.Client
	maxImageSize int64
}

func NewArchiveHandler(archiveService *archive.Service, imdbClient *imdb.Client, maxImageSize int64) *ArchiveHandler {
	return &ArchiveHandler{
		archive:      archiveService,
		imdb:         imdbClient,
		maxImageSize: maxImageSize,
	}
}

// Routes mounts under /archives/tvseries.
func (h *ArchiveHandler) Routes(r chi.Router) {
	r.Get("/", h.ListSeries)
	r.Post("/", h.CreateSeries)
	r.Get("/search", h.SearchSeries)
	r.Get("/imdb-lookup", h.ImdbLookup)
	r.Get("/export", h.Export)

	r.Route("/{seriesID}", func(r chi.Router) {
		r.Get("/", h.GetSeries)
		r.Patch("/", h.UpdateSeries)
		r.Delete("/", h.DeleteSeries)

		r.Get("/permissions", h.ListPermissions)
		r.Put("/permissions", h.ReplacePermissions)

		r.Get("/seasons", h.ListSeasons)
		r.Post("/seasons", h.CreateSeason)
		r.Route("/seasons/{seasonID}", func(r chi.Router) {
			r.Get("/", h.GetSeason)
			r.Patch("/", h.UpdateSeason)
			r.Delete("/", h.DeleteSeason)
			r.Get("/subtitles", h.ListSubtitles)
			r.Post("/subtitles", h.CreateSubtitle)
			r.Delete("/subtitles/{subtitleID}", h.DeleteSubtitle)
		})

		r.Get("/images", h.ListImages)
		r.Post("/images", h.UploadImage)
		r.Get("/images/{imageID}", h.GetImage)
		r.Delete("/images/{imageID}", h.DeleteImage)
	})
}

func (h *ArchiveHandler) ListSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	isFinished, err := parseBoolQuery(r, "is_finished")
	if err != nil {
		RespondServiceError(w, err, "Invalid filter")
		return
	}

	q := r.URL.Query()
	page := ParsePagination(r, defaultSeriesPageSize, maxSeriesPageSize)
	series, total, err := h.archive.ListSeries(r.Context(), user, archive.ListOptions{
		Name:       q.Get("name"),
		IsFinished: isFinished,
		Author:     q.Get("author"),
		ImdbURL:    q.Get("imdb_url"),
		Ordering:   q.Get("ordering"),
		Expr:       q.Get("expr"),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		RespondServiceError(w, err, "Failed to list series")
		return
	}

	RespondJSON(w, http.StatusOK, newListResponse(series, total, page))
}

func (h *ArchiveHandler) SearchSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxSeriesPageSize)
		}
	}

	results, err := h.archive.SearchSeries(r.Context(), user, r.URL.Query().Get("q"), limit)
	if err != nil {
		RespondServiceError(w, err, "Failed to search series")
		return
	}

	RespondJSON(w, http.StatusOK, results)
}

func (h *ArchiveHandler) ImdbLookup(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	if h.imdb == nil {
		RespondError(w, http.StatusServiceUnavailable, "IMDb lookup is disabled")
		return
	}

	title, err := h.imdb.Lookup(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			RespondServiceError(w, err, "Invalid IMDb URL")
		case errors.Is(err, imdb.ErrTitleNotFound):
			RespondError(w, http.StatusNotFound, err.Error())
		default:
			log.Warn().Err(err).Msg("imdb lookup failed")
			RespondError(w, http.StatusBadGateway, "IMDb lookup failed")
		}
		return
	}

	RespondJSON(w, http.StatusOK, title)
}

// Export streams every series the user authored as YAML.
func (h *ArchiveHandler) Export(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tvarchive-"+time.Now().Format("20060102")+".yaml"))
	if err := h.archive.ExportYAML(r.Context(), user, w); err != nil {
		log.Error().Err(err).Int("user", user.ID).Msg("export failed")
	}
}

func (h *ArchiveHandler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.SeriesCreate
	if !DecodeJSON(w, r, &req) {
		return
	}

	series, err := h.archive.CreateSeries(r.Context(), user, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to create series")
		return
	}

	RespondJSON(w, http.StatusCreated, series)
}

func (h *ArchiveHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	series, err := h.archive.GetSeries(r.Context(), user, seriesID)
	if err != nil {
		RespondServiceError(w, err, "Failed to load series")
		return
	}

	RespondJSON(w, http.StatusOK, series)
}

func (h *ArchiveHandler) UpdateSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	var req models.SeriesUpdate
	if !DecodeJSON(w, r, &req) {
		return
	}

	series, err := h.archive.UpdateSeries(r.Context(), user, seriesID, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to update series")
		return
	}

	RespondJSON(w, http.StatusOK, series)
}

func (h *ArchiveHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	if err := h.archive.DeleteSeries(r.Context(), user, seriesID); err != nil {
		RespondServiceError(w, err, "Failed to delete series")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type permissionsRequest struct {
	Grants []archive.GrantInput `json:"grants"`
}

func (h *ArchiveHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	grants, err := h.archive.ListPermissions(r.Context(), user, seriesID)
	if err != nil {
		RespondServiceError(w, err, "Failed to list permissions")
		return
	}

	RespondJSON(w, http.StatusOK, grantsResponse(grants))
}

func (h *ArchiveHandler) ReplacePermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	var req permissionsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	grants, err := h.archive.ReplacePermissions(r.Context(), user, seriesID, req.Grants)
	if err != nil {
		RespondServiceError(w, err, "Failed to update permissions")
		return
	}

	RespondJSON(w, http.StatusOK, grantsResponse(grants))
}

type permissionsResponse struct {
	Grants []models.Grant `json:"grants"`
}

func grantsResponse(grants []models.Grant) permissionsResponse {
	if grants == nil {
		grants = []models.Grant{}
	}
	return permissionsResponse{Grants: grants}
}

func (h *ArchiveHandler) ListSeasons(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	seasons, err := h.archive.ListSeasons(r.Context(), user, seriesID)
	if err != nil {
		RespondServiceError(w, err, "Failed to list seasons")
		return
	}

	RespondJSON(w, http.StatusOK, seasons)
}

func (h *ArchiveHandler) CreateSeason(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	var req models.SeasonCreate
	if !DecodeJSON(w, r, &req) {
		return
	}

	season, err := h.archive.CreateSeason(r.Context(), user, seriesID, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to create season")
		return
	}

	RespondJSON(w, http.StatusCreated, season)
}

// seasonParams parses both path IDs of a season route.
func seasonParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return 0, 0, false
	}
	seasonID, ok := ParseSeasonID(w, r)
	if !ok {
		return 0, 0, false
	}
	return seriesID, seasonID, true
}

func (h *ArchiveHandler) GetSeason(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}

	season, err := h.archive.GetSeason(r.Context(), user, seriesID, seasonID)
	if err != nil {
		RespondServiceError(w, err, "Failed to load season")
		return
	}

	RespondJSON(w, http.StatusOK, season)
}

func (h *ArchiveHandler) UpdateSeason(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}

	var req models.SeasonUpdate
	if !DecodeJSON(w, r, &req) {
		return
	}

	season, err := h.archive.UpdateSeason(r.Context(), user, seriesID, seasonID, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to update season")
		return
	}

	RespondJSON(w, http.StatusOK, season)
}

func (h *ArchiveHandler) DeleteSeason(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}

	if err := h.archive.DeleteSeason(r.Context(), user, seriesID, seasonID); err != nil {
		RespondServiceError(w, err, "Failed to delete season")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ArchiveHandler) ListSubtitles(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}

	subtitles, err := h.archive.ListSubtitles(r.Context(), user, seriesID, seasonID, r.URL.Query().Get("language"))
	if err != nil {
		RespondServiceError(w, err, "Failed to list subtitles")
		return
	}

	RespondJSON(w, http.StatusOK, subtitles)
}

func (h *ArchiveHandler) CreateSubtitle(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}

	var req models.SubtitleCreate
	if !DecodeJSON(w, r, &req) {
		return
	}

	subtitle, err := h.archive.CreateSubtitle(r.Context(), user, seriesID, seasonID, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to create subtitle")
		return
	}

	RespondJSON(w, http.StatusCreated, subtitle)
}

func (h *ArchiveHandler) DeleteSubtitle(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, seasonID, ok := seasonParams(w, r)
	if !ok {
		return
	}
	subtitleID, ok := ParsePositiveIntParam(w, r, "subtitleID", "subtitle ID")
	if !ok {
		return
	}

	if err := h.archive.DeleteSubtitle(r.Context(), user, seriesID, seasonID, subtitleID); err != nil {
		RespondServiceError(w, err, "Failed to delete subtitle")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ArchiveHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	images, err := h.archive.ListImages(r.Context(), user, seriesID)
	if err != nil {
		RespondServiceError(w, err, "Failed to list images")
		return
	}

	RespondJSON(w, http.StatusOK, images)
}

// UploadImage accepts a multipart form with the file in the "image" field.
func (h *ArchiveHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageSize+uploadSlack)
	if err := r.ParseMultipartForm(h.maxImageSize + uploadSlack); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondServiceError(w, models.FieldError("image", "file exceeds the maximum size of %d bytes", h.maxImageSize), "")
			return
		}
		RespondServiceError(w, models.FieldError("image", "expected a multipart form upload"), "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		RespondServiceError(w, models.FieldError("image", "no file was submitted"), "")
		return
	}
	defer file.Close()

	image, err := h.archive.UploadImage(r.Context(), user, seriesID, file)
	if err != nil {
		RespondServiceError(w, err, "Failed to upload image")
		return
	}

	RespondJSON(w, http.StatusCreated, image)
}

func (h *ArchiveHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}
	imageID, ok := ParsePositiveIntParam(w, r, "imageID", "image ID")
	if !ok {
		return
	}

	image, path, err := h.archive.GetImage(r.Context(), user, seriesID, imageID)
	if err != nil {
		RespondServiceError(w, err, "Failed to load image")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("image file missing")
		RespondError(w, http.StatusNotFound, "Image file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", image.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, image.Path, image.CreatedAt, f)
}

func (h *ArchiveHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	seriesID, ok := ParseSeriesID(w, r)
	if !ok {
		return
	}
	imageID, ok := ParsePositiveIntParam(w, r, "imageID", "image ID")
	if !ok {
		return
	}

	if err := h.archive.DeleteImage(r.Context(), user, seriesID, imageID); err != nil {
		RespondServiceError(w, err, "Failed to delete image")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
