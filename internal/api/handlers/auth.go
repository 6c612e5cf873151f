// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tvarchive/internal/api/ctxkeys"
	"github.com/autobrr/tvarchive/internal/api/middleware"
	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/models"
)

// FailedLoginRecorder tracks failed logins per address.
type FailedLoginRecorder interface {
	RecordFailedLogin(r *http.Request) (banned bool)
	ClearFailures(r *http.Request)
}

type AuthHandler struct {
	authService    *auth.Service
	sessionManager *scs.SessionManager
	failures       FailedLoginRecorder
}

func NewAuthHandler(authService *auth.Service, sessionManager *scs.SessionManager, failures FailedLoginRecorder) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionManager: sessionManager,
		failures:       failures,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type CurrentPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
}

type SetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type SetUsernameRequest struct {
	CurrentPassword string `json:"current_password"`
	NewUsername     string `json:"new_username"`
}

type SetEmailRequest struct {
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email"`
}

type SetSlavesRequest struct {
	Slaves []auth.Credentials `json:"slaves"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access        string    `json:"access"`
	AccessExpires time.Time `json:"access_expires"`
}

// PublicRoutes are reachable without a session.
func (h *AuthHandler) PublicRoutes(r chi.Router) {
	r.Post("/users", h.Register)
	r.Post("/users/activation", h.Activate)
	r.Post("/users/resend_activation", h.ResendActivation)
	r.Post("/users/reset_password", h.ResetPassword)
	r.Post("/users/reset_password_confirm", h.ResetPasswordConfirm)
	r.Post("/login", h.Login)
	r.Post("/jwt/create", h.CreateToken)
	r.Post("/jwt/refresh", h.RefreshToken)
	r.Post("/jwt/verify", h.VerifyToken)
}

// Routes require an authenticated user.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/logout", h.Logout)
	r.Get("/users/me", h.Me)
	r.Patch("/users/me", h.UpdateMe)
	r.Delete("/users/me", h.DeleteMe)
	r.Post("/users/set_password", h.SetPassword)
	r.Post("/users/set_username", h.SetUsername)
	r.Post("/users/set_email", h.SetEmail)
	r.Post("/users/set_slaves", h.SetSlaves)
	r.Post("/users/set_master", h.SetMaster)
	r.Get("/users/slaves", h.ListSlaves)
	r.Delete("/users/slaves/{userID}", h.DetachSlave)
	r.Delete("/users/master", h.DetachFromMaster)
}

// respondAuthError maps account errors before falling back to the shared
// service mapping.
func respondAuthError(w http.ResponseWriter, err error, fallbackMessage string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrInactive), errors.Is(err, auth.ErrAlreadyActive):
		RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrStaleToken):
		RespondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Validation failed",
			Fields: map[string][]string{"token": {err.Error()}},
		})
	case errors.Is(err, auth.ErrSelfDelegation),
		errors.Is(err, auth.ErrMasterIsSlave),
		errors.Is(err, auth.ErrSlaveHasSlaves),
		errors.Is(err, auth.ErrAlreadyHasMaster):
		RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotSlave):
		RespondError(w, http.StatusNotFound, err.Error())
	default:
		RespondServiceError(w, err, fallbackMessage)
	}
}

// Register creates an inactive account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		respondAuthError(w, err, "Failed to register user")
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if _, err := h.authService.Activate(r.Context(), req.Token); err != nil {
		respondAuthError(w, err, "Failed to activate user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ResendActivation(r.Context(), req.Email); err != nil {
		respondAuthError(w, err, "Failed to resend activation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		respondAuthError(w, err, "Failed to request password reset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) ResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req ResetConfirmRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		respondAuthError(w, err, "Failed to reset password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// checkCredentials runs a login attempt and applies the failed-login
// policy. It reports false when a response was already written.
func (h *AuthHandler) checkCredentials(w http.ResponseWriter, r *http.Request, username, password string) (*models.User, bool) {
	user, err := h.authService.Login(r.Context(), username, password)
	if err != nil {
		h.respondCredentialError(w, r, err, "Login failed")
		return nil, false
	}

	if h.failures != nil {
		h.failures.ClearFailures(r)
	}
	return user, true
}

// respondCredentialError counts rejected passwords, of this or another
// account, against the client address before mapping err.
func (h *AuthHandler) respondCredentialError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	rejected := errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrWrongPassword)
	if rejected && h.failures != nil && h.failures.RecordFailedLogin(r) {
		RespondError(w, http.StatusForbidden, "Too many failed logins")
		return
	}
	respondAuthError(w, err, fallbackMessage)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, ok := h.checkCredentials(w, r, req.Username, req.Password)
	if !ok {
		return
	}

	// Renew token to prevent session fixation attacks
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to renew session token")
	}

	h.sessionManager.Put(r.Context(), middleware.SessionUserID, user.ID)
	h.sessionManager.Put(r.Context(), middleware.SessionFinger, auth.Fingerprint(user))
	h.sessionManager.RememberMe(r.Context(), req.RememberMe)

	log.Info().Str("username", user.Username).Msg("user logged in")
	RespondJSON(w, http.StatusOK, user)
}

// Logout handles user logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to destroy session")
		RespondError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, ok := h.checkCredentials(w, r, req.Username, req.Password)
	if !ok {
		return
	}

	pair, err := h.authService.IssueTokenPair(user)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue tokens")
		RespondError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	RespondJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	access, expires, err := h.authService.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrStaleToken) || errors.Is(err, auth.ErrInactive) {
			RespondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		RespondServiceError(w, err, "Failed to refresh token")
		return
	}

	RespondJSON(w, http.StatusOK, RefreshResponse{Access: access, AccessExpires: expires})
}

// VerifyToken accepts both access and refresh tokens.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	tokens := h.authService.Tokens()
	if _, err := tokens.Parse(req.Token, auth.PurposeAccess); err != nil {
		if _, err := tokens.Parse(req.Token, auth.PurposeRefresh); err != nil {
			RespondError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			return
		}
	}

	RespondJSON(w, http.StatusOK, map[string]any{})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.UserProfileUpdate
	if !DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.authService.UpdateProfile(r.Context(), user.ID, req)
	if err != nil {
		respondAuthError(w, err, "Failed to update profile")
		return
	}

	RespondJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CurrentPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.DeleteAccount(r.Context(), user.ID, req.CurrentPassword); err != nil {
		h.respondCredentialError(w, r, err, "Failed to delete account")
		return
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Failed to destroy session after account deletion")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.SetPassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondCredentialError(w, r, err, "Failed to change password")
		return
	}

	// Keep the current session valid under the new password.
	if ctxkeys.MethodFrom(r.Context()) == ctxkeys.MethodSession {
		if updated, err := h.authService.GetUser(r.Context(), user.ID); err == nil {
			h.sessionManager.Put(r.Context(), middleware.SessionFinger, auth.Fingerprint(updated))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) SetUsername(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SetUsernameRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.authService.SetUsername(r.Context(), user.ID, req.CurrentPassword, req.NewUsername)
	if err != nil {
		h.respondCredentialError(w, r, err, "Failed to change username")
		return
	}

	RespondJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) SetEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SetEmailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.authService.SetEmail(r.Context(), user.ID, req.CurrentPassword, req.NewEmail)
	if err != nil {
		h.respondCredentialError(w, r, err, "Failed to change email")
		return
	}

	RespondJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) SetSlaves(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SetSlavesRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	slaves, err := h.authService.SetSlaves(r.Context(), user.ID, req.Slaves)
	if err != nil {
		h.respondCredentialError(w, r, err, "Failed to set slaves")
		return
	}

	RespondJSON(w, http.StatusOK, slaves)
}

func (h *AuthHandler) SetMaster(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req auth.Credentials
	if !DecodeJSON(w, r, &req) {
		return
	}

	updated, err := h.authService.SetMaster(r.Context(), user.ID, req)
	if err != nil {
		h.respondCredentialError(w, r, err, "Failed to set master")
		return
	}

	RespondJSON(w, http.StatusOK, updated)
}

func (h *AuthHandler) ListSlaves(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	slaves, err := h.authService.ListSlaves(r.Context(), user.ID)
	if err != nil {
		respondAuthError(w, err, "Failed to list slaves")
		return
	}

	RespondJSON(w, http.StatusOK, slaves)
}

func (h *AuthHandler) DetachSlave(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	slaveID, ok := ParsePositiveIntParam(w, r, "userID", "user ID")
	if !ok {
		return
	}

	if err := h.authService.DetachSlave(r.Context(), user.ID, slaveID); err != nil {
		respondAuthError(w, err, "Failed to detach slave")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) DetachFromMaster(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.authService.DetachFromMaster(r.Context(), user.ID); err != nil {
		respondAuthError(w, err, "Failed to detach from master")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
