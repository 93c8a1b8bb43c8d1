// Package auth mints API keys. Raw keys carry an "hv_" prefix and are
// shown exactly once; only the bcrypt hash is persisted.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	rawKeyBytes = 24
	// PrefixLen is the number of leading characters stored in clear for
	// indexed lookup.
	PrefixLen = 8
)

// MintedKey holds a freshly generated API key.
type MintedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// Mint generates a random API key and its bcrypt hash.
func Mint() (*MintedKey, error) {
	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	raw := "hv_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &MintedKey{
		Raw:    raw,
		Prefix: raw[:PrefixLen],
		Hash:   string(hash),
	}, nil
}
