package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher produces and verifies one-way salted password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil only if password matches hash
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher; out-of-range costs fall back to the default
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash hashes password
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare verifies password against hash in constant time
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func isPasswordTooLong(err error) bool {
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}
