package handlers

import (
	"net/http"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/services/auth"
	"github.com/gorilla/mux"
)

// Me returns the caller's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Profile(r.Context(), currentUser(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "User profile fetched successfully", profile)
}

// UpdateMe changes profile fields. Password fields are refused.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	upd, err := auth.ParseProfileUpdate(raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	profile, err := h.auth.UpdateProfile(r.Context(), currentUser(r).ID, upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "User profile updated successfully", profile)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword re-verifies the current password and stores a new one
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), currentUser(r).ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "Password changed successfully", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

const forgotPasswordMessage = "If the account exists, a reset link has been sent"

// ForgotPassword mails a reset link. Unless strict mode is configured the
// response does not reveal whether the email is registered or whether the
// mail went out.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	err := h.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil && !h.cfg.ForgotPasswordStrict {
		switch apperr.KindOf(err) {
		case apperr.NotFound, apperr.DeliveryFailed:
			err = nil
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, forgotPasswordMessage, nil)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPassword consumes the reset secret from the path
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), mux.Vars(r)["token"], req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "Password has been reset", nil)
}
