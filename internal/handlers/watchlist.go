package handlers

import (
	"net/http"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/gorilla/mux"
)

// GetWatchlist lists the caller's symbols in insertion order
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.List(r.Context(), currentUser(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "Watchlist fetched successfully", items)
}

type addWatchRequest struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"displayName"`
}

// AddToWatchlist tracks a new symbol
func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req addWatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	items, err := h.watchlist.Add(r.Context(), currentUser(r).ID, req.Symbol, req.DisplayName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusCreated, "Added to watchlist", items)
}

// RemoveFromWatchlist stops tracking a symbol; absent symbols are fine
func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.Remove(r.Context(), currentUser(r).ID, mux.Vars(r)["symbol"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, "Removed from watchlist", items)
}
