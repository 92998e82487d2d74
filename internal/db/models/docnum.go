package models

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// NewDocumentNumber generates a human-facing document number such as
// ORD-3QK7VH2M. Base58 avoids ambiguous characters; 6 random bytes keep
// collisions below the unique-index retry threshold at realistic volumes.
func NewDocumentNumber(prefix string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate document number: %w", err)
	}
	return prefix + "-" + strings.ToUpper(base58.Encode(buf)), nil
}
