// Package api holds the JSON response envelope shared by handlers and
// middleware.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/findosh/coinwatch/internal/apperr"
)

// Response is the success envelope
type Response struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
}

// ErrorResponse is the failure envelope
type ErrorResponse struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Kind       apperr.Kind `json:"kind"`
	Message    string      `json:"message"`
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput, apperr.InvalidOrExpiredToken:
		return http.StatusBadRequest
	case apperr.InvalidCredentials, apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.DeliveryFailed, apperr.UpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// JSON writes a success envelope
func JSON(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, Response{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// Error writes err as a failure envelope. Unclassified errors are logged
// and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	if kind == apperr.Internal && logger != nil {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	write(w, status, ErrorResponse{
		StatusCode: status,
		Kind:       kind,
		Message:    apperr.MessageOf(err),
	})
}

// Fail writes a failure envelope for a kind without an underlying error
func Fail(w http.ResponseWriter, kind apperr.Kind, message string) {
	status := StatusFor(kind)
	write(w, status, ErrorResponse{
		StatusCode: status,
		Kind:       kind,
		Message:    message,
	})
}

func write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
