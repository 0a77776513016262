package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
)

var _ authdomain.AttestationVerifier = (*GooglePlayIntegrityVerifier)(nil)

// GooglePlayIntegrityVerifier validates hardware attestation tokens against
// Google's Play Integrity decodeIntegrityToken response: package
// name allow-list, nonce match, device verdict MEETS_STRONG_INTEGRITY, and
// app verdict PLAY_RECOGNIZED.
type GooglePlayIntegrityVerifier struct {
	client      httpDoer
	decodeURL   string // e.g. https://playintegrity.googleapis.com/v1/{packageName}:decodeIntegrityToken?key=API_KEY
	packageIDs  map[string]struct{}
	requireLic  bool
}

// NewGooglePlayIntegrityVerifier creates a GooglePlayIntegrityVerifier.
// decodeURL must already carry the caller's API key/OAuth token in its
// query or be fronted by an authenticated client; packageIDs is the
// server-side allow-list for request_package_name.
func NewGooglePlayIntegrityVerifier(client httpDoer, decodeURL string, packageIDs []string, requireLicensed bool) *GooglePlayIntegrityVerifier {
	set := make(map[string]struct{}, len(packageIDs))
	for _, id := range packageIDs {
		set[id] = struct{}{}
	}
	return &GooglePlayIntegrityVerifier{client: client, decodeURL: decodeURL, packageIDs: set, requireLic: requireLicensed}
}

type googleIntegrityDecodeRequest struct {
	IntegrityToken string `json:"integrity_token"`
}

type googleIntegrityVerdict struct {
	RequestDetails struct {
		RequestPackageName string `json:"requestPackageName"`
		Nonce              string `json:"nonce"`
	} `json:"requestDetails"`
	AppIntegrity struct {
		AppRecognitionVerdict string `json:"appRecognitionVerdict"`
	} `json:"appIntegrity"`
	DeviceIntegrity struct {
		DeviceRecognitionVerdict []string `json:"deviceRecognitionVerdict"`
	} `json:"deviceIntegrity"`
	AccountDetails struct {
		AppLicensingVerdict string `json:"appLicensingVerdict"`
	} `json:"accountDetails"`
}

type googleIntegrityResponse struct {
	TokenPayloadExternal googleIntegrityVerdict `json:"tokenPayloadExternal"`
}

// Verify decodes token via the Play Integrity API and checks it against
// expectedNonceB64 and the configured package allow-list.
func (v *GooglePlayIntegrityVerifier) Verify(ctx context.Context, token string, expectedNonceB64 string) (bool, error) {
	ctx, span := tracer.Start(ctx, "attestation.google.verify")
	defer span.End()

	body, err := json.Marshal(googleIntegrityDecodeRequest{IntegrityToken: token})
	if err != nil {
		return false, fmt.Errorf("google play integrity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.decodeURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("google play integrity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("google play integrity: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("google play integrity: unexpected status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	var decoded googleIntegrityResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("google play integrity: decode response: %w", err)
	}

	verdict := decoded.TokenPayloadExternal
	if _, ok := v.packageIDs[verdict.RequestDetails.RequestPackageName]; !ok {
		return false, nil
	}
	if verdict.RequestDetails.Nonce != expectedNonceB64 {
		return false, nil
	}
	if !containsDeviceVerdict(verdict.DeviceIntegrity.DeviceRecognitionVerdict, "MEETS_STRONG_INTEGRITY") {
		return false, nil
	}
	if verdict.AppIntegrity.AppRecognitionVerdict != "PLAY_RECOGNIZED" {
		return false, nil
	}
	if v.requireLic && verdict.AccountDetails.AppLicensingVerdict != "LICENSED" {
		return false, nil
	}
	return true, nil
}

func containsDeviceVerdict(verdicts []string, want string) bool {
	for _, v := range verdicts {
		if v == want {
			return true
		}
	}
	return false
}
