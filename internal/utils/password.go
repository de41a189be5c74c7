package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// UnusablePasswordHash returns the hash of a random password nobody knows.
// Accounts created through OAuth get one so password login stays closed.
func UnusablePasswordHash(cost int) (string, error) {
	secret, err := RandomToken(32)
	if err != nil {
		return "", err
	}
	// bcrypt only reads the first 72 bytes, a 43 char token fits.
	return HashPassword(secret, cost)
}

// BCryptHasher adapts the helpers above to an injectable hasher.
type BCryptHasher struct {
	Cost int
}

func (h BCryptHasher) Hash(password string) (string, error) {
	return HashPassword(password, h.Cost)
}

func (h BCryptHasher) Check(password, hash string) bool {
	return CheckPasswordHash(password, hash)
}

func (h BCryptHasher) Unusable() (string, error) {
	return UnusablePasswordHash(h.Cost)
}
