// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/archive"
)

type GroupingHandler struct {
	archive *archive.Service
}

func NewGroupingHandler(archiveService *archive.Service) *GroupingHandler {
	return &GroupingHandler{archive: archiveService}
}

func (h *GroupingHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{groupingID}", h.Get)
	r.Patch("/{groupingID}", h.Update)
	r.Delete("/{groupingID}", h.Delete)
}

func (h *GroupingHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	groupings, err := h.archive.ListGroupings(r.Context(), user)
	if err != nil {
		RespondServiceError(w, err, "Failed to list groupings")
		return
	}
	if groupings == nil {
		groupings = []*models.Grouping{}
	}

	RespondJSON(w, http.StatusOK, groupings)
}

func (h *GroupingHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.GroupingInput
	if !DecodeJSON(w, r, &req) {
		return
	}

	grouping, err := h.archive.CreateGrouping(r.Context(), user, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to create grouping")
		return
	}

	RespondJSON(w, http.StatusCreated, grouping)
}

func (h *GroupingHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := ParsePositiveIntParam(w, r, "groupingID", "grouping ID")
	if !ok {
		return
	}

	grouping, err := h.archive.GetGrouping(r.Context(), user, id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load grouping")
		return
	}

	RespondJSON(w, http.StatusOK, grouping)
}

func (h *GroupingHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := ParsePositiveIntParam(w, r, "groupingID", "grouping ID")
	if !ok {
		return
	}

	var req models.GroupingInput
	if !DecodeJSON(w, r, &req) {
		return
	}

	grouping, err := h.archive.UpdateGrouping(r.Context(), user, id, req)
	if err != nil {
		RespondServiceError(w, err, "Failed to update grouping")
		return
	}

	RespondJSON(w, http.StatusOK, grouping)
}

func (h *GroupingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := ParsePositiveIntParam(w, r, "groupingID", "grouping ID")
	if !ok {
		return
	}

	if err := h.archive.DeleteGrouping(r.Context(), user, id); err != nil {
		RespondServiceError(w, err, "Failed to delete grouping")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
