package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/findosh/coinwatch/internal/models"
)

const resetSecretBytes = 32

// ResetTokenManager issues single-use password reset secrets. Only the
// SHA-256 of a secret is ever stored.
type ResetTokenManager struct {
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// NewResetTokenManager creates a manager. now may be nil.
func NewResetTokenManager(ttl time.Duration, now func() time.Time) *ResetTokenManager {
	if now == nil {
		now = time.Now
	}
	return &ResetTokenManager{ttl: ttl, now: now, random: rand.Reader}
}

// Issue generates a secret and the stored form that authorizes it
func (m *ResetTokenManager) Issue() (string, models.ResetToken, error) {
	b := make([]byte, resetSecretBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", models.ResetToken{}, fmt.Errorf("failed to generate reset secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(b)

	return secret, models.ResetToken{
		Hash:      HashResetSecret(secret),
		ExpiresAt: m.now().UTC().Add(m.ttl),
	}, nil
}

// Valid reports whether secret matches t and t has not expired
func (m *ResetTokenManager) Valid(t *models.ResetToken, secret string) bool {
	if !t.Active(m.now()) || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.Hash), []byte(HashResetSecret(secret))) == 1
}

// HashResetSecret returns the hex SHA-256 of secret
func HashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
