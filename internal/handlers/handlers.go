// Package handlers provides HTTP request handlers
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/config"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/middleware"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/findosh/coinwatch/internal/services/auth"
	"github.com/findosh/coinwatch/internal/services/marketdata"
	"github.com/findosh/coinwatch/internal/services/watchlist"
	"github.com/gorilla/websocket"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 16 << 10

// Handler contains all HTTP handlers and dependencies
type Handler struct {
	cfg       *config.Config
	log       *slog.Logger
	auth      *auth.Service
	watchlist *watchlist.Service
	market    *marketdata.Service
	poller    *marketdata.Poller
	upgrader  websocket.Upgrader
}

// New creates a new handler with all dependencies
func New(
	cfg *config.Config,
	logger *slog.Logger,
	authService *auth.Service,
	watchlistService *watchlist.Service,
	marketService *marketdata.Service,
	poller *marketdata.Poller,
) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		cfg:       cfg,
		log:       logger.With("component", "http"),
		auth:      authService,
		watchlist: watchlistService,
		market:    marketService,
		poller:    poller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// fail writes err as an error envelope
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	api.Error(w, r, h.log, err)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

// readBody reads a bounded raw body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, bodyError(err)
	}
	return raw, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return apperr.Wrap(apperr.InvalidInput, "Request body is too large", err)
	case errors.Is(err, io.EOF):
		return apperr.Wrap(apperr.InvalidInput, "Request body is required", err)
	default:
		return apperr.Wrap(apperr.InvalidInput, "Request body must be valid JSON", err)
	}
}

// currentUser returns the authenticated user. Routes using it must sit
// behind RequireAuth.
func currentUser(r *http.Request) *models.User {
	return middleware.GetUser(r)
}

func setSessionCookie(w http.ResponseWriter, secure bool, s *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
