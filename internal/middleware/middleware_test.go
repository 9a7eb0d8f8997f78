package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/findosh/coinwatch/internal/api"
	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/gorilla/mux"
)

type tokenMap map[string]*models.User

func (m tokenMap) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if u, ok := m[token]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.Unauthorized, "Unauthorized")
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r)
	if user == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(user.Email))
}

func TestRequireAuth(t *testing.T) {
	alice := models.NewUser("alice@example.com", "Alice", "hash")
	auth := NewAuth(tokenMap{"good": alice})
	h := auth.RequireAuth(http.HandlerFunc(whoAmI))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"}) }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bad bearer ignores cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
			r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"})
		}, http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic Z29vZA==") }, http.StatusUnauthorized},
	}

	var firstBody string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && rec.Body.String() != alice.Email {
				t.Errorf("Expected user in context, got %q", rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				if firstBody == "" {
					firstBody = rec.Body.String()
				} else if rec.Body.String() != firstBody {
					t.Errorf("401 bodies differ: %q vs %q", rec.Body.String(), firstBody)
				}
			}
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Expected JSON body: %v", err)
	}
	if body.Kind != apperr.Internal {
		t.Errorf("Expected Internal kind, got %s", body.Kind)
	}
}

func TestLoggerRecordsStatus(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Logger(logging.Discard()))

	var seen string
	r.HandleFunc("/api/watchlist/{symbol}", func(w http.ResponseWriter, req *http.Request) {
		seen = routeTemplate(req)
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/watchlist/bitcoin", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", rec.Code)
	}
	if seen != "/api/watchlist/{symbol}" {
		t.Errorf("Expected route template, got %q", seen)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), mw("a"), mw("b"), SecurityHeaders)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("Unexpected order %v", order)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers")
	}
}
