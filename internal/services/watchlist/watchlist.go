// Package watchlist enforces the per-user symbol list rules
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/findosh/coinwatch/internal/storage"
	"github.com/google/uuid"
)

const maxSymbolLength = 64

// Service manages watchlists stored on the user document
type Service struct {
	store   storage.CredentialStore
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewService creates a new watchlist service. timeout bounds each store call.
func NewService(store storage.CredentialStore, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		store:   store,
		log:     logger.With("component", "watchlist"),
		timeout: timeout,
		now:     time.Now,
	}
}

// List returns a copy of the user's watchlist in insertion order
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.WatchItem, error) {
	ctx, cancel := s.context(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return models.CloneWatchlist(user.Watchlist), nil
}

// Add appends symbol unless the user already tracks it
func (s *Service) Add(ctx context.Context, userID uuid.UUID, symbol, displayName string) ([]models.WatchItem, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, apperr.New(apperr.InvalidInput, "Symbol is required")
	}
	if len(symbol) > maxSymbolLength {
		return nil, apperr.New(apperr.InvalidInput, "Symbol is too long")
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	user, err := storage.Mutate(ctx, s.store, userID, func(u *models.User) error {
		if u.HasSymbol(symbol) {
			return apperr.New(apperr.Conflict, "Symbol already in watchlist")
		}
		u.Watchlist = append(u.Watchlist, models.WatchItem{
			Symbol:      symbol,
			DisplayName: strings.TrimSpace(displayName),
			AddedAt:     s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	s.log.DebugContext(ctx, "symbol added", "user_id", userID, "symbol", symbol)
	return models.CloneWatchlist(user.Watchlist), nil
}

// Remove drops every entry matching symbol. Removing an absent symbol is not
// an error.
func (s *Service) Remove(ctx context.Context, userID uuid.UUID, symbol string) ([]models.WatchItem, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, apperr.New(apperr.InvalidInput, "Symbol is required")
	}

	ctx, cancel := s.context(ctx)
	defer cancel()

	user, err := storage.Mutate(ctx, s.store, userID, func(u *models.User) error {
		if !u.RemoveSymbol(symbol) {
			return storage.ErrAbort
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return models.CloneWatchlist(user.Watchlist), nil
}

func (s *Service) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func classify(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "User not found", err)
	case errors.Is(err, storage.ErrVersionConflict):
		return apperr.Wrap(apperr.Conflict, "Concurrent update, please retry", err)
	default:
		return fmt.Errorf("watchlist: %w", err)
	}
}
