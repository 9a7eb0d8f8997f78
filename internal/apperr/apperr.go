// Package apperr defines the error kinds surfaced at the service boundary.
// Callers match them with errors.Is against the Kind values or the
// package-level sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer
type Kind string

const (
	InvalidInput          Kind = "InvalidInput"
	Conflict              Kind = "Conflict"
	InvalidCredentials    Kind = "InvalidCredentials"
	Unauthorized          Kind = "Unauthorized"
	NotFound              Kind = "NotFound"
	InvalidOrExpiredToken Kind = "InvalidOrExpiredToken"
	DeliveryFailed        Kind = "DeliveryFailed"
	UpstreamError         Kind = "UpstreamError"
	Internal              Kind = "Internal"
)

// Error is a classified error with a caller-safe message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrConflict)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidInput          = &Error{Kind: InvalidInput}
	ErrConflict              = &Error{Kind: Conflict}
	ErrInvalidCredentials    = &Error{Kind: InvalidCredentials}
	ErrUnauthorized          = &Error{Kind: Unauthorized}
	ErrNotFound              = &Error{Kind: NotFound}
	ErrInvalidOrExpiredToken = &Error{Kind: InvalidOrExpiredToken}
	ErrDeliveryFailed        = &Error{Kind: DeliveryFailed}
	ErrUpstream              = &Error{Kind: UpstreamError}
)

// New returns a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err, keeping it in the chain
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal if err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the caller-safe message of err. Unclassified errors get a
// generic message so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal Server Error"
}
