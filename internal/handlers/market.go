package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
)

const defaultOHLCDays = 7

// MarketPrice returns the current quote for ?symbol=
func (h *Handler) MarketPrice(w http.ResponseWriter, r *http.Request) {
	symbol := queryParam(r, "symbol")
	if symbol == "" {
		api.Fail(w, apperr.InvalidInput, "Symbol query parameter is required")
		return
	}

	quote, err := h.market.SpotPrice(r.Context(), symbol)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, fmt.Sprintf("Price data for %s fetched successfully", quote.ID), quote)
}

// MarketOHLC returns candles for ?symbol=&days=, seven days by default
func (h *Handler) MarketOHLC(w http.ResponseWriter, r *http.Request) {
	symbol := queryParam(r, "symbol")
	if symbol == "" {
		api.Fail(w, apperr.InvalidInput, "Symbol query parameter is required")
		return
	}

	days := defaultOHLCDays
	if raw := queryParam(r, "days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.Fail(w, apperr.InvalidInput, "Days must be a positive integer")
			return
		}
		days = n
	}

	candles, err := h.market.OHLC(r.Context(), symbol, days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.JSON(w, http.StatusOK, fmt.Sprintf("OHLC data for %s fetched successfully", symbol), candles)
}

// MarketLatest returns the most recent poll snapshot
func (h *Handler) MarketLatest(w http.ResponseWriter, r *http.Request) {
	update, ok := h.poller.Latest()
	if !ok {
		api.Fail(w, apperr.NotFound, "No market data available yet")
		return
	}
	api.JSON(w, http.StatusOK, "Latest market data", update)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
