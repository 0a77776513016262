package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

// RegisterKeysParams are the inputs to register_keys. v2-only and
// ed25519-signed-prekey are the only supported shape; the caller (port
// layer) must already have rejected anything else, but RegisterKeys
// re-validates defensively.
type RegisterKeysParams struct {
	DeviceID              domain.DeviceID
	IdentityKeyB64        string
	IdentitySigningKeyB64 string
	SignedPrekeyID        int64
	SignedPrekeyB64       string
	SignedPrekeySigB64    string
	V2Only                bool
	SignedPrekeySigAlg    string
}

// RegisterKeys verifies the Ed25519 signature binding the signed prekey to
// the device's identity signing key, then persists identity key, signed
// prekey, and v2-only protocol state.
func (s *ChatService) RegisterKeys(ctx context.Context, p RegisterKeysParams) error {
	ctx, span := tracer.Start(ctx, "chat.RegisterKeys")
	defer span.End()

	if !p.V2Only || p.SignedPrekeySigAlg != "ed25519" {
		return fmt.Errorf("register_keys requires v2_only and ed25519 signature: %w", domain.ErrInvalidInput)
	}

	ok, err := chatdomain.VerifyRegisterKeysSignature(
		p.IdentitySigningKeyB64, p.DeviceID.String(), p.IdentityKeyB64,
		p.SignedPrekeyID, p.SignedPrekeyB64, p.SignedPrekeySigB64)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("parse register_keys signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("register_keys signature invalid: %w", domain.ErrInvalidInput)
	}

	if err := s.keyBundles.UpsertIdentityKey(ctx, chatdomain.IdentityKey{
		DeviceID:              p.DeviceID,
		IdentityKeyB64:        p.IdentityKeyB64,
		IdentitySigningKeyB64: p.IdentitySigningKeyB64,
	}); err != nil {
		return fmt.Errorf("upsert identity key: %w", err)
	}
	if err := s.keyBundles.UpsertSignedPrekey(ctx, chatdomain.SignedPrekey{
		DeviceID:     p.DeviceID,
		KeyID:        p.SignedPrekeyID,
		PublicKeyB64: p.SignedPrekeyB64,
		SignatureB64: p.SignedPrekeySigB64,
	}); err != nil {
		return fmt.Errorf("upsert signed prekey: %w", err)
	}
	if err := s.keyBundles.UpsertProtocolState(ctx, chatdomain.DeviceProtocolState{
		DeviceID:      p.DeviceID,
		ProtocolFloor: domain.ProtocolV2Libsignal,
		SupportsV2:    true,
		V2Only:        true,
	}); err != nil {
		return fmt.Errorf("upsert protocol state: %w", err)
	}
	return nil
}

// UploadPrekeysParams is the input to upload_prekeys.
type UploadPrekeysParams struct {
	DeviceID domain.DeviceID
	Prekeys  []UploadPrekey
}

// UploadPrekey is a single one-time prekey from the batch.
type UploadPrekey struct {
	KeyID  int64
	KeyB64 string
}

// UploadPrekeys validates and inserts up to MaxOneTimePrekeysPerUpload fresh
// one-time prekeys; key_id must be positive and unique within the batch.
func (s *ChatService) UploadPrekeys(ctx context.Context, p UploadPrekeysParams) error {
	ctx, span := tracer.Start(ctx, "chat.UploadPrekeys")
	defer span.End()

	if len(p.Prekeys) == 0 || len(p.Prekeys) > domain.MaxOneTimePrekeysPerUpload {
		return fmt.Errorf("upload_prekeys batch size out of range: %w", domain.ErrInvalidInput)
	}
	seen := make(map[int64]bool, len(p.Prekeys))
	rows := make([]chatdomain.OneTimePrekey, 0, len(p.Prekeys))
	for _, pk := range p.Prekeys {
		if pk.KeyID <= 0 {
			return fmt.Errorf("prekey key_id must be positive: %w", domain.ErrInvalidInput)
		}
		if seen[pk.KeyID] {
			return fmt.Errorf("duplicate prekey key_id %d in batch: %w", pk.KeyID, domain.ErrInvalidInput)
		}
		seen[pk.KeyID] = true
		rows = append(rows, chatdomain.OneTimePrekey{
			DeviceID:  p.DeviceID,
			KeyID:     pk.KeyID,
			KeyB64:    pk.KeyB64,
			CreatedAt: s.clock.Now(),
		})
	}
	if err := s.keyBundles.InsertOneTimePrekeys(ctx, rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert one-time prekeys: %w", err)
	}
	return nil
}

// GetKeyBundle fetches and atomically consumes one one-time prekey for the
// target device. Returns domain.ErrKeyBundleUnavailable (mapped to an opaque
// 404) if the device does not exist or fails the strict-v2 bundle policy.
func (s *ChatService) GetKeyBundle(ctx context.Context, deviceID domain.DeviceID) (*chatdomain.KeyBundle, error) {
	ctx, span := tracer.Start(ctx, "chat.GetKeyBundle")
	defer span.End()

	bundle, err := s.keyBundles.FetchAndConsumeBundle(ctx, deviceID)
	if err != nil {
		if !domain.IsNotFound(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("fetch key bundle: %w", err)
	}
	keyBundlesIssuedTotal.Add(ctx, 1)
	return &bundle, nil
}
