package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 10

	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// CheckPassword enforces the password policy for new buddies.
func CheckPassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword returns the bcrypt hash stored for a buddy.
func HashPassword(password string) (string, error) {
	if err := CheckPassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports ErrInvalidCredentials when password does not match
// the stored hash. Guests have no hash and never match.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
