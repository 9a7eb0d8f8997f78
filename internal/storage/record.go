package storage

import (
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
)

// userRecord is the serialized form of a user for the document backends.
// The SQLite backend maps columns directly and does not use it.
type userRecord struct {
	ID             string        `json:"id" bson:"_id"`
	Email          string        `json:"email" bson:"email"`
	PasswordHash   string        `json:"passwordHash" bson:"password_hash"`
	Name           string        `json:"name" bson:"name"`
	Watchlist      []watchRecord `json:"watchlist" bson:"watchlist"`
	ResetHash      string        `json:"resetHash,omitempty" bson:"reset_token_hash,omitempty"`
	ResetExpiresAt time.Time     `json:"resetExpiresAt,omitempty" bson:"reset_token_expires_at,omitempty"`
	Version        int64         `json:"version" bson:"version"`
	CreatedAt      time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updated_at"`
}

type watchRecord struct {
	Symbol      string    `json:"symbol" bson:"symbol"`
	DisplayName string    `json:"displayName,omitempty" bson:"display_name,omitempty"`
	AddedAt     time.Time `json:"addedAt" bson:"added_at"`
}

func newUserRecord(u *models.User) userRecord {
	rec := userRecord{
		ID:           u.ID.String(),
		Email:        models.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Watchlist:    make([]watchRecord, 0, len(u.Watchlist)),
		Version:      u.Version,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	for _, w := range u.Watchlist {
		rec.Watchlist = append(rec.Watchlist, watchRecord{
			Symbol:      w.Symbol,
			DisplayName: w.DisplayName,
			AddedAt:     w.AddedAt.UTC(),
		})
	}
	if u.Reset != nil && u.Reset.Hash != "" {
		rec.ResetHash = u.Reset.Hash
		rec.ResetExpiresAt = u.Reset.ExpiresAt.UTC()
	}
	return rec
}

func (r userRecord) user() (*models.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           id,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Watchlist:    make([]models.WatchItem, 0, len(r.Watchlist)),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	for _, w := range r.Watchlist {
		u.Watchlist = append(u.Watchlist, models.WatchItem{
			Symbol:      w.Symbol,
			DisplayName: w.DisplayName,
			AddedAt:     w.AddedAt,
		})
	}
	if r.ResetHash != "" {
		u.Reset = &models.ResetToken{Hash: r.ResetHash, ExpiresAt: r.ResetExpiresAt}
	}
	return u, nil
}
