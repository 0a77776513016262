package domain

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/shamell/shamell/internal/domain"
)

// RegisterKeysSigningDomain is the fixed string prefix signed over by
// register_keys, binding the signature to this exact protocol version.
const RegisterKeysSigningDomain = "shamell-key-register-v1\n"

// RegisterKeysSignedMessage builds the exact byte string the client signs
// with its identity signing key when calling register_keys.
func RegisterKeysSignedMessage(deviceID, identityKeyB64 string, signedPrekeyID int64, signedPrekeyB64 string) []byte {
	msg := fmt.Sprintf("%s%s\n%s\n%d\n%s\n",
		RegisterKeysSigningDomain, deviceID, identityKeyB64, signedPrekeyID, signedPrekeyB64)
	return []byte(msg)
}

// VerifyRegisterKeysSignature verifies the Ed25519 signature over the
// register_keys canonical message using the device's base64-encoded
// identity signing public key.
func VerifyRegisterKeysSignature(identitySigningKeyB64, deviceID, identityKeyB64 string, signedPrekeyID int64, signedPrekeyB64, signatureB64 string) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(identitySigningKeyB64)
	if err != nil {
		return false, fmt.Errorf("decode identity signing key: %w", domain.ErrInvalidInput)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("identity signing key has wrong length: %w", domain.ErrInvalidInput)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", domain.ErrInvalidInput)
	}
	msg := RegisterKeysSignedMessage(deviceID, identityKeyB64, signedPrekeyID, signedPrekeyB64)
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}
