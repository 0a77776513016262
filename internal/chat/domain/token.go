package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashToken returns the lowercase-hex sha256 of raw. Device auth tokens and
// mailbox tokens are persisted only as this hash.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateRawToken returns n random bytes rendered as lowercase hex.
func GenerateRawToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// KeyFingerprint returns the first keyFingerprintHexLen hex characters of
// sha256(publicKeyB64), used to journal key rotations without persisting
// raw key material in the audit trail.
func KeyFingerprint(publicKeyB64 string, hexLen int) string {
	sum := sha256.Sum256([]byte(publicKeyB64))
	full := hex.EncodeToString(sum[:])
	if hexLen > len(full) {
		hexLen = len(full)
	}
	return full[:hexLen]
}
