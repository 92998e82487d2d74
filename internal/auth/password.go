package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/bcrypt"
)

// ErrCredentialMismatch is returned when a password or client secret does
// not match the stored hash.
var ErrCredentialMismatch = errors.New("credential mismatch")

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against its bcrypt hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrCredentialMismatch
	}
	return nil
}

// NewClientSecret generates a base58-encoded 192-bit client secret for
// service accounts. Base58 avoids characters that break copy/paste in
// shells and config files.
func NewClientSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}
	return base58.Encode(buf), nil
}

// NewClientID generates a prefixed base58 client identifier.
func NewClientID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate client id: %w", err)
	}
	return "msa_" + base58.Encode(buf), nil
}
