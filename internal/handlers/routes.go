package handlers

import (
	"net/http"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the router. Request logging runs inside the router so the
// matched route template is known.
func (h *Handler) Routes(authMiddleware *middleware.Auth) *mux.Router {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, apperr.NotFound, "Route not found")
	})
	r.Use(middleware.Logger(h.log))

	protect := func(f http.HandlerFunc) http.Handler {
		return authMiddleware.RequireAuth(f)
	}

	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/api/auth").Subrouter()
	a.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	a.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	a.Handle("/logout", protect(h.Logout)).Methods(http.MethodPost)

	u := r.PathPrefix("/api/users").Subrouter()
	u.Handle("/me", protect(h.Me)).Methods(http.MethodGet)
	u.Handle("/me", protect(h.UpdateMe)).Methods(http.MethodPut)
	u.Handle("/change-password", protect(h.ChangePassword)).Methods(http.MethodPut)
	u.HandleFunc("/forgot-password", h.ForgotPassword).Methods(http.MethodPut)
	u.HandleFunc("/reset-password/{token}", h.ResetPassword).Methods(http.MethodPut)

	wl := r.PathPrefix("/api/watchlist").Subrouter()
	wl.Handle("", protect(h.GetWatchlist)).Methods(http.MethodGet)
	wl.Handle("", protect(h.AddToWatchlist)).Methods(http.MethodPost)
	wl.Handle("/{symbol}", protect(h.RemoveFromWatchlist)).Methods(http.MethodDelete)

	m := r.PathPrefix("/api/market").Subrouter()
	m.HandleFunc("/price", h.MarketPrice).Methods(http.MethodGet)
	m.HandleFunc("/ohlc", h.MarketOHLC).Methods(http.MethodGet)
	m.HandleFunc("/latest", h.MarketLatest).Methods(http.MethodGet)

	r.HandleFunc("/ws/market", h.MarketStream).Methods(http.MethodGet)

	return r
}
