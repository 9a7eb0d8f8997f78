package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(Conflict, "email already registered")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("register: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.Equal(t, "email already registered", MessageOf(wrapped))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(UpstreamError, "price feed unavailable", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindOf_Unclassified(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "Internal Server Error", MessageOf(err))
}
