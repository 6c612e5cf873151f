// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/models"
	"github.com/autobrr/tvarchive/internal/services/audit"
	"github.com/autobrr/tvarchive/internal/services/blacklist"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 500
)

type UserIPLister interface {
	List(ctx context.Context, userID int) ([]models.UserIP, error)
}

// AdminHandler serves the staff-only administration endpoints.
type AdminHandler struct {
	audit     *audit.Service
	blacklist *blacklist.Service
	auth      *auth.Service
	userIPs   UserIPLister
}

func NewAdminHandler(auditService *audit.Service, blacklistService *blacklist.Service, authService *auth.Service, userIPs UserIPLister) *AdminHandler {
	return &AdminHandler{
		audit:     auditService,
		blacklist: blacklistService,
		auth:      authService,
		userIPs:   userIPs,
	}
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/history/{model}/{objectID}", h.History)
	r.Get("/logs", h.Logs)
	r.Get("/logs/{entryID}", h.LogEntry)

	r.Route("/blacklist", func(r chi.Router) {
		r.Get("/", h.ListBlacklist)
		r.Post("/", h.AddBlacklist)
		r.Get("/{ip}", h.GetBlacklist)
		r.Delete("/{ip}", h.RemoveBlacklist)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/{userID}/undelete", h.UndeleteUser)
		r.Get("/{userID}/ips", h.UserIPs)
	})
}

func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseContentType(chi.URLParam(r, "model"))
	if err != nil {
		RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	objectID, ok := ParsePositiveIntParam(w, r, "objectID", "object ID")
	if !ok {
		return
	}

	page := ParsePagination(r, audit.DefaultPageSize, audit.MaxPageSize)
	result, err := h.audit.History(r.Context(), kind, objectID, page.Limit, page.Offset)
	if err != nil {
		RespondServiceError(w, err, "Failed to load history")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func parseTimeQuery(r *http.Request, name string, v *models.ValidationError) time.Time {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t
	}
	v.Add(name, "expected an RFC 3339 timestamp or YYYY-MM-DD date")
	return time.Time{}
}

func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := ParsePagination(r, audit.DefaultPageSize, audit.MaxPageSize)
	filter := models.ChangeLogFilter{Limit: page.Limit, Offset: page.Offset}
	v := models.NewValidationError()

	if raw := q.Get("model"); raw != "" {
		kind, err := models.ParseContentType(raw)
		if err != nil {
			v.Add("model", err.Error())
		}
		filter.ContentType = kind
	}
	if raw := q.Get("operation"); raw != "" {
		op, err := models.ParseOperation(raw)
		if err != nil {
			v.Add("operation", err.Error())
		}
		filter.Operation = op
	}
	if raw := q.Get("user"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			v.Add("user", "must be a positive integer")
		} else {
			filter.UserID = &id
		}
	}
	if raw := q.Get("object"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			v.Add("object", "must be a positive integer")
		} else {
			filter.ObjectID = id
		}
	}
	filter.Since = parseTimeQuery(r, "since", v)
	filter.Until = parseTimeQuery(r, "until", v)

	if err := v.OrNil(); err != nil {
		RespondServiceError(w, err, "Invalid filter")
		return
	}

	result, err := h.audit.Logs(r.Context(), filter)
	if err != nil {
		RespondServiceError(w, err, "Failed to load logs")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) LogEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "entryID", "entry ID")
	if !ok {
		return
	}

	entry, err := h.audit.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to load log entry")
		return
	}

	RespondJSON(w, http.StatusOK, entry)
}

// BlacklistView is the API representation of a blacklist entry.
type BlacklistView struct {
	IP             string     `json:"ip"`
	RecordTime     time.Time  `json:"record_time"`
	Stretch        string     `json:"stretch"`
	StretchSeconds int64      `json:"stretch_seconds"`
	Permanent      bool       `json:"permanent"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Active         bool       `json:"active"`
	Reason         string     `json:"reason"`
}

func newBlacklistView(e *models.BlacklistEntry, now time.Time) BlacklistView {
	view := BlacklistView{
		IP:             e.IP,
		RecordTime:     e.RecordTime,
		Stretch:        e.Stretch.String(),
		StretchSeconds: int64(e.Stretch / time.Second),
		Permanent:      e.Permanent(),
		Active:         e.ActiveAt(now),
		Reason:         e.Reason,
	}
	if !view.Permanent {
		expires := e.ExpiresAt()
		view.ExpiresAt = &expires
	}
	return view
}

// BlacklistRequest adds or refreshes an entry. An empty or zero stretch
// blocks the address permanently.
type BlacklistRequest struct {
	IP      string `json:"ip"`
	Stretch string `json:"stretch"`
	Reason  string `json:"reason"`
}

func (h *AdminHandler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := parseBoolQuery(r, "active")
	if err != nil {
		RespondServiceError(w, err, "Invalid filter")
		return
	}

	entries, err := h.blacklist.List(r.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		RespondServiceError(w, err, "Failed to list blacklist")
		return
	}

	now := time.Now()
	views := make([]BlacklistView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newBlacklistView(e, now))
	}

	RespondJSON(w, http.StatusOK, views)
}

func (h *AdminHandler) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	var stretch time.Duration
	if raw := strings.TrimSpace(req.Stretch); raw != "" && raw != "0" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			RespondServiceError(w, models.FieldError("stretch", "expected a non-negative duration such as 90m or 24h"), "")
			return
		}
		stretch = parsed
	}

	entry, err := h.blacklist.Add(r.Context(), req.IP, stretch, req.Reason)
	if err != nil {
		RespondServiceError(w, err, "Failed to blacklist address")
		return
	}

	RespondJSON(w, http.StatusCreated, newBlacklistView(entry, time.Now()))
}

func (h *AdminHandler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	ip, ok := ParseStringParam(w, r, "ip", "IP")
	if !ok {
		return
	}

	entry, err := h.blacklist.Get(r.Context(), ip)
	if err != nil {
		RespondServiceError(w, err, "Failed to load blacklist entry")
		return
	}

	RespondJSON(w, http.StatusOK, newBlacklistView(entry, time.Now()))
}

func (h *AdminHandler) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	ip, ok := ParseStringParam(w, r, "ip", "IP")
	if !ok {
		return
	}

	if err := h.blacklist.Remove(r.Context(), ip); err != nil {
		RespondServiceError(w, err, "Failed to remove blacklist entry")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, defaultUserPageSize, maxUserPageSize)
	users, total, err := h.auth.ListUsers(r.Context(), models.UserListOptions{
		IncludeDeleted: true,
		Search:         r.URL.Query().Get("search"),
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	if err != nil {
		RespondServiceError(w, err, "Failed to list users")
		return
	}

	RespondJSON(w, http.StatusOK, newListResponse(users, total, page))
}

func (h *AdminHandler) UndeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "userID", "user ID")
	if !ok {
		return
	}

	user, err := h.auth.Undelete(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to restore user")
		return
	}

	RespondJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) UserIPs(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePositiveIntParam(w, r, "userID", "user ID")
	if !ok {
		return
	}

	if _, err := h.auth.GetUserIncludingDeleted(r.Context(), id); err != nil {
		RespondServiceError(w, err, "Failed to load user")
		return
	}

	ips, err := h.userIPs.List(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err, "Failed to list user addresses")
		return
	}
	if ips == nil {
		ips = []models.UserIP{}
	}

	RespondJSON(w, http.StatusOK, ips)
}
