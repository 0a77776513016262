package domain

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shamell/shamell/internal/domain"
)

// HashToken returns the lowercase-hex sha256 of raw. Every capability token
// (session cookie, biometric token, device-login token, contact invite,
// mailbox token, chat device-auth token) is persisted only as this hash.
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

// BiometricTokenHash binds a biometric re-auth token to its device before
// hashing, so a token lifted from one device cannot be replayed from
// another even if the raw value leaks.
func BiometricTokenHash(deviceID, raw string) string {
	return HashToken("bio:" + deviceID + ":" + raw)
}

// EncodeChallengeToken renders payload as "v1.<base64url(payload)>.<base64url(HMAC-SHA256(payload))>".
func EncodeChallengeToken(payload ChallengePayload, secret []byte) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal challenge payload: %w", err)
	}
	encBody := base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	encMAC := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return "v1." + encBody + "." + encMAC, nil
}

// DecodeChallengeToken verifies the HMAC and parses the payload. It performs
// a constant-time MAC comparison and never leaks why a token failed beyond
// the sentinel error category.
func DecodeChallengeToken(token string, secret []byte) (ChallengePayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != "v1" {
		return ChallengePayload{}, fmt.Errorf("malformed challenge token: %w", domain.ErrInvalidInput)
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ChallengePayload{}, fmt.Errorf("decode challenge body: %w", domain.ErrInvalidInput)
	}
	gotMAC, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return ChallengePayload{}, fmt.Errorf("decode challenge mac: %w", domain.ErrInvalidInput)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	wantMAC := mac.Sum(nil)
	if subtle.ConstantTimeCompare(gotMAC, wantMAC) != 1 {
		return ChallengePayload{}, fmt.Errorf("challenge mac mismatch: %w", domain.ErrChallengeExpired)
	}
	var payload ChallengePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ChallengePayload{}, fmt.Errorf("unmarshal challenge payload: %w", domain.ErrInvalidInput)
	}
	return payload, nil
}

// HWAttestationNonce returns base64url_nopad(sha256(challengeToken)), the
// nonce every hardware-attestation provider must echo back to prove it is
// bound to this very challenge.
func HWAttestationNonce(challengeToken string) string {
	sum := sha256.Sum256([]byte(challengeToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPoW checks that sha256("nonce:device_id:solution_decimal") has at
// least difficultyBits leading zero bits, using a constant-time comparison
// of the required all-zero prefix bytes.
func VerifyPoW(nonce, deviceID string, solution uint64, difficultyBits int) bool {
	input := nonce + ":" + deviceID + ":" + strconv.FormatUint(solution, 10)
	sum := sha256.Sum256([]byte(input))
	return leadingZeroBitsAtLeast(sum[:], difficultyBits)
}

func leadingZeroBitsAtLeast(digest []byte, bits int) bool {
	if bits <= 0 {
		return true
	}
	fullBytes := bits / 8
	remBits := bits % 8
	if fullBytes > len(digest) {
		return false
	}
	zeros := make([]byte, fullBytes)
	if subtle.ConstantTimeCompare(digest[:fullBytes], zeros) != 1 {
		return false
	}
	if remBits == 0 {
		return true
	}
	if fullBytes >= len(digest) {
		return false
	}
	mask := byte(0xFF << (8 - remBits))
	return digest[fullBytes]&mask == 0
}
