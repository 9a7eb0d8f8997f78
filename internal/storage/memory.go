package storage

import (
	"context"
	"sync"
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
)

var _ CredentialStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CredentialStore. Documents are deep-copied on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	closed  bool
	byID    map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Create inserts a new user
func (s *MemoryStore) Create(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	email := models.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}

	u.Email = email
	u.Version = 1
	s.byID[u.ID] = u.Clone()
	s.byEmail[email] = u.ID
	return nil
}

// FindByID retrieves a user by ID
func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// FindByEmail retrieves a user by normalized email
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// FindByResetTokenHash retrieves the user holding the given reset hash
func (s *MemoryStore) FindByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if hash == "" {
		return nil, ErrNotFound
	}
	for _, u := range s.byID {
		if u.Reset != nil && u.Reset.Hash == hash {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Update replaces the stored user if its version is unchanged
func (s *MemoryStore) Update(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	current, ok := s.byID[u.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != u.Version {
		return ErrVersionConflict
	}

	email := models.NormalizeEmail(u.Email)
	if email != current.Email {
		if owner, taken := s.byEmail[email]; taken && owner != u.ID {
			return ErrEmailTaken
		}
		delete(s.byEmail, current.Email)
		s.byEmail[email] = u.ID
	}

	u.Email = email
	u.Version++
	s.byID[u.ID] = u.Clone()
	return nil
}

// ExpiredResets lists users whose reset token expired before now
func (s *MemoryStore) ExpiredResets(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var ids []uuid.UUID
	for id, u := range s.byID {
		if u.Reset != nil && !u.Reset.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close marks the store closed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
