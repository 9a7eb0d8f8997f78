// Package middleware provides HTTP middleware functions
package middleware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/metrics"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/gorilla/mux"
)

type contextKey string

const (
	UserContextKey contextKey = "user"

	// SessionCookie carries the session token for browser clients
	SessionCookie = "session"
)

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logger logs every request and records request metrics. Register it with
// Router.Use so the matched route template is available.
func Logger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeTemplate(r)
			elapsed := time.Since(start)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			logger.InfoContext(r.Context(), "request",
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration", elapsed,
			)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// SecurityHeaders adds security headers to all responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Recover turns a panicking handler into a 500 envelope
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.ErrorContext(r.Context(), "panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", fmt.Sprint(v),
					)
					api.Fail(w, apperr.Internal, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator resolves a session token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Auth middleware for protected routes
type Auth struct {
	authenticator Authenticator
}

// NewAuth creates a new auth middleware
func NewAuth(a Authenticator) *Auth {
	return &Auth{authenticator: a}
}

// RequireAuth ensures the user is authenticated. Every failure gets the
// same 401 body.
func (m *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := m.getUserFromRequest(r)
		if user == nil {
			api.Fail(w, apperr.Unauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Auth) getUserFromRequest(r *http.Request) *models.User {
	// Authorization header wins over the cookie
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		user, err := m.authenticator.Authenticate(r.Context(), strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			return nil
		}
		return user
	}

	cookie, err := r.Cookie(SessionCookie)
	if err == nil && cookie.Value != "" {
		user, err := m.authenticator.Authenticate(r.Context(), cookie.Value)
		if err == nil {
			return user
		}
	}
	return nil
}

// GetUser retrieves the user from the request context
func GetUser(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// Chain applies middleware in order
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
