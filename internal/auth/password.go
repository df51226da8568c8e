package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost matches the cost existing digests were created with.
	DefaultBcryptCost = 10

	// MaxPasswordBytes is the longest input bcrypt reads; it ignores the rest.
	MaxPasswordBytes = 72
)

// Hasher derives and checks one-way password digests.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher is a Hasher backed by bcrypt. Each digest embeds its own salt.
type BcryptHasher struct {
	cost  int
	dummy string
}

// NewBcryptHasher creates a hasher with the given cost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	h := &BcryptHasher{cost: cost}

	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	dummy, err := h.Hash(base64.RawStdEncoding.EncodeToString(secret))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns a bcrypt digest of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches digest. Malformed digests and
// inputs longer than MaxPasswordBytes never match.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	match := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	return match && len(plaintext) <= MaxPasswordBytes
}

// DummyDigest is a digest no caller knows the input of. Comparing against it
// costs the same as comparing against a real account's digest.
func (h *BcryptHasher) DummyDigest() string {
	return h.dummy
}
