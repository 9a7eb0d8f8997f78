// Package models defines core domain types
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents a registered account and the watchlist it owns
type User struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"` // Never serialize to JSON
	Name         string      `json:"name"`
	Watchlist    []WatchItem `json:"watchlist"`
	Reset        *ResetToken `json:"-"` // Never serialize
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Version is the optimistic concurrency token. Stores bump it on every
	// successful update and reject writes carrying a stale value.
	Version int64 `json:"-"`
}

// WatchItem is one tracked symbol, owned by exactly one user
type WatchItem struct {
	Symbol      string    `json:"symbol"`
	DisplayName string    `json:"displayName,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

// ResetToken is the persisted half of a password reset secret. Only the
// hash of the secret is kept.
type ResetToken struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the token can still authorize a reset at now
func (t *ResetToken) Active(now time.Time) bool {
	return t != nil && t.Hash != "" && now.Before(t.ExpiresAt)
}

// Profile is the user projection safe to return to clients
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new user with generated ID and timestamps
func NewUser(email, name, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Watchlist:    []WatchItem{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Profile returns the safe projection of the user
func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// Clone returns a deep copy so callers cannot mutate shared state
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Watchlist = CloneWatchlist(u.Watchlist)
	if u.Reset != nil {
		r := *u.Reset
		c.Reset = &r
	}
	return &c
}

// HasSymbol reports whether the watchlist already tracks symbol, ignoring case
func (u *User) HasSymbol(symbol string) bool {
	for _, item := range u.Watchlist {
		if strings.EqualFold(item.Symbol, symbol) {
			return true
		}
	}
	return false
}

// RemoveSymbol drops every item matching symbol, ignoring case. It reports
// whether anything was removed.
func (u *User) RemoveSymbol(symbol string) bool {
	kept := make([]WatchItem, 0, len(u.Watchlist))
	for _, item := range u.Watchlist {
		if !strings.EqualFold(item.Symbol, symbol) {
			kept = append(kept, item)
		}
	}
	removed := len(kept) != len(u.Watchlist)
	u.Watchlist = kept
	return removed
}

// CloneWatchlist copies items; a nil input yields an empty, non-nil slice
func CloneWatchlist(items []WatchItem) []WatchItem {
	out := make([]WatchItem, len(items))
	copy(out, items)
	return out
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
