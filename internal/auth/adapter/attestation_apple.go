package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
)

var _ authdomain.AttestationVerifier = (*AppleDeviceCheckVerifier)(nil)

const appleDeviceCheckURL = "https://api.devicecheck.apple.com/v1/validate_device_token"

// httpDoer is a narrow, consumer-defined interface for the subset of
// *http.Client required here, so tests can fake the transport without a
// real network call.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AppleDeviceCheckVerifier validates hardware attestation tokens against
// Apple's DeviceCheck validate_device_token endpoint.
type AppleDeviceCheckVerifier struct {
	client     httpDoer
	teamID     string
	keyID      string
	signedJWT  func() (string, error)
	bundleID   string
}

// NewAppleDeviceCheckVerifier creates an AppleDeviceCheckVerifier. signedJWT
// produces a fresh ES256 JWT signed with the App Store Connect API key for
// each call, per Apple's DeviceCheck bearer-token requirement.
func NewAppleDeviceCheckVerifier(client httpDoer, teamID, keyID, bundleID string, signedJWT func() (string, error)) *AppleDeviceCheckVerifier {
	return &AppleDeviceCheckVerifier{client: client, teamID: teamID, keyID: keyID, bundleID: bundleID, signedJWT: signedJWT}
}

type appleDeviceCheckRequest struct {
	DeviceToken string `json:"device_token"`
	Transaction string `json:"transaction_id"`
	Timestamp   int64  `json:"timestamp"`
}

// Verify submits token (base64 DeviceCheck token) with expectedNonceB64 bound
// into the transaction id so a replayed token against a different challenge
// is rejected server-side by correlation in our own logs; DeviceCheck itself
// reports only bit state, not nonce binding, so nonce freshness is enforced
// by the caller via challenge expiry.
func (v *AppleDeviceCheckVerifier) Verify(ctx context.Context, token string, expectedNonceB64 string) (bool, error) {
	ctx, span := tracer.Start(ctx, "attestation.apple.verify")
	defer span.End()

	jwt, err := v.signedJWT()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("apple devicecheck: sign jwt: %w", err)
	}

	body, err := json.Marshal(appleDeviceCheckRequest{
		DeviceToken: token,
		Transaction: expectedNonceB64,
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("apple devicecheck: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, appleDeviceCheckURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("apple devicecheck: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)

	resp, err := v.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("apple devicecheck: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized, http.StatusBadRequest:
		return false, nil
	default:
		err := fmt.Errorf("apple devicecheck: unexpected status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
}

// decodeB64 is a small shared helper for adapters that need to sanity-check
// caller-supplied base64url tokens before forwarding them upstream.
func decodeB64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
