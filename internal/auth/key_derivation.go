package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (32 bytes for HMAC-SHA256).
	DerivedKeyLength = 32

	purposeSessionJWT = "navigator-session-jwt-v1"
	purposeCSRFJWT    = "navigator-csrf-jwt-v1"
)

// ErrInvalidMasterSecret is returned when the master secret is empty.
var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a signing key from the master secret using HKDF-SHA256.
// Keys derived with different purpose strings are cryptographically
// independent, so compromise of one does not expose the others.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// DeriveSessionKey derives the key for signing session tokens.
func DeriveSessionKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeSessionJWT)
}

// DeriveCSRFKey derives the key for signing CSRF tokens.
func DeriveCSRFKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeCSRFJWT)
}
