package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrVersionConflict = errors.New("version conflict")
	ErrClosed          = errors.New("store closed")
)

// CredentialStore persists user documents. Implementations must make Update
// a compare-and-set on User.Version: the write only lands if the stored
// version equals u.Version, and on success the stored version (and
// u.Version) is incremented by one.
type CredentialStore interface {
	// Create inserts a new user. Returns ErrEmailTaken if the normalized
	// email is already registered.
	Create(ctx context.Context, u *models.User) error

	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByResetTokenHash(ctx context.Context, hash string) (*models.User, error)

	// Update replaces the stored document. Returns ErrVersionConflict when the
	// stored version moved since u was read.
	Update(ctx context.Context, u *models.User) error

	// ExpiredResets returns the ids of users whose reset token expired
	// before now.
	ExpiredResets(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	Close() error
}

// MaxMutateAttempts bounds the optimistic retry loop in Mutate
const MaxMutateAttempts = 8

// ErrAbort can be returned from a Mutate callback to stop without writing
// and without reporting an error to the caller.
var ErrAbort = errors.New("mutation aborted")

// Mutate applies fn to a fresh copy of the user and writes the result back
// atomically. On a version conflict the document is re-read and fn runs
// again, so fn must be a pure function of the user it is given. An error
// from fn aborts the mutation and is returned unchanged, except ErrAbort
// which returns the current user and a nil error.
func Mutate(ctx context.Context, s CredentialStore, id uuid.UUID, fn func(u *models.User) error) (*models.User, error) {
	for attempt := 0; attempt < MaxMutateAttempts; attempt++ {
		u, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(u); err != nil {
			if errors.Is(err, ErrAbort) {
				return u, nil
			}
			return nil, err
		}

		u.UpdatedAt = time.Now().UTC()
		err = s.Update(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("mutate user %s: %w", id, ErrVersionConflict)
}
