package handlers

import (
	"net/http"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/services/auth"
)

// Register creates an account and signs it in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input auth.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.auth.Register(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setSessionCookie(w, h.cfg.IsProduction(), session)
	api.JSON(w, http.StatusCreated, "User registered successfully", session)
}

// Login exchanges credentials for a session token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var input auth.LoginInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	setSessionCookie(w, h.cfg.IsProduction(), session)
	api.JSON(w, http.StatusOK, "Login successful", session)
}

// Logout clears the session cookie. Bearer tokens stay valid until they
// expire.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), currentUser(r).ID)
	clearSessionCookie(w, h.cfg.IsProduction())
	api.JSON(w, http.StatusOK, "Logged out successfully", nil)
}
