package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/findosh/coinwatch/internal/storage"
	"github.com/google/uuid"
)

const maxNameLength = 100

// Keys that may never be written through a profile update
var passwordKeys = map[string]bool{
	"password":        true,
	"passwordhash":    true,
	"password_hash":   true,
	"newpassword":     true,
	"currentpassword": true,
	"resettoken":      true,
	"reset_token":     true,
}

// ProfileUpdate holds the fields a user may change on their own profile
type ProfileUpdate struct {
	Name *string
}

// ParseProfileUpdate decodes a JSON object into a ProfileUpdate. Password and
// reset fields, and any other unknown key, are rejected.
func ParseProfileUpdate(raw []byte) (ProfileUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ProfileUpdate{}, apperr.Wrap(apperr.InvalidInput, "Request body must be a JSON object", err)
	}

	var upd ProfileUpdate
	for key, value := range fields {
		switch {
		case passwordKeys[strings.ToLower(key)]:
			return ProfileUpdate{}, apperr.New(apperr.InvalidInput, "Password cannot be changed through the profile, use change-password")
		case key == "name":
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return ProfileUpdate{}, apperr.New(apperr.InvalidInput, "Name must be a string")
			}
			name = strings.TrimSpace(name)
			if utf8.RuneCountInString(name) > maxNameLength {
				return ProfileUpdate{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("Name must be at most %d characters", maxNameLength))
			}
			upd.Name = &name
		default:
			return ProfileUpdate{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("Field %q cannot be updated", key))
		}
	}
	return upd, nil
}

// Profile returns the safe projection of a user
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Profile{}, apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to load user: %w", err)
	}
	return user.Profile(), nil
}

// UpdateProfile applies upd and returns the new projection
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (models.Profile, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := storage.Mutate(ctx, s.store, userID, func(u *models.User) error {
		if upd.Name == nil || *upd.Name == u.Name {
			return storage.ErrAbort
		}
		u.Name = *upd.Name
		return nil
	})
	if err != nil {
		return models.Profile{}, s.mutationError(err)
	}
	return user.Profile(), nil
}
