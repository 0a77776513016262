package app

import (
	"context"
	"crypto/subtle"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

// RegisterDeviceParams are the inputs to device registration.
type RegisterDeviceParams struct {
	DeviceID       domain.DeviceID
	PublicKeyB64   string
	Name           string
	// ExistingAuthToken is presented on re-registration; empty on first
	// registration.
	ExistingAuthToken string
}

// RegisterDeviceResult carries the freshly-issued auth token on first
// registration. On re-registration AuthToken is empty (the existing token
// remains valid).
type RegisterDeviceResult struct {
	Device    chatdomain.Device
	AuthToken string
	Rotated   bool
}

// RegisterDevice performs first-registration (issuing a 256-bit auth token)
// or re-registration (requiring the existing token, constant-time compared,
// and journaling a key rotation when public_key changed).
func (s *ChatService) RegisterDevice(ctx context.Context, p RegisterDeviceParams) (*RegisterDeviceResult, error) {
	ctx, span := tracer.Start(ctx, "chat.RegisterDevice")
	defer span.End()

	existing, err := s.devices.FindDevice(ctx, p.DeviceID)
	switch {
	case err == nil:
		return s.reRegisterDevice(ctx, existing, p)
	case domain.IsNotFound(err):
		return s.firstRegisterDevice(ctx, p)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lookup device: %w", err)
	}
}

func (s *ChatService) firstRegisterDevice(ctx context.Context, p RegisterDeviceParams) (*RegisterDeviceResult, error) {
	rawToken, err := chatdomain.GenerateRawToken(domain.DeviceAuthTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate device auth token: %w", err)
	}
	d := chatdomain.Device{
		ID:           p.DeviceID,
		PublicKeyB64: p.PublicKeyB64,
		KeyVersion:   1,
		Name:         p.Name,
		CreatedAt:    s.clock.Now(),
	}
	stored, err := s.devices.Register(ctx, d, chatdomain.HashToken(rawToken), nil)
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	devicesRegisteredTotal.Add(ctx, 1)
	return &RegisterDeviceResult{Device: stored, AuthToken: rawToken}, nil
}

func (s *ChatService) reRegisterDevice(ctx context.Context, existing chatdomain.Device, p RegisterDeviceParams) (*RegisterDeviceResult, error) {
	auth, err := s.devices.FindAuth(ctx, p.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device auth: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(chatdomain.HashToken(p.ExistingAuthToken)), []byte(auth.TokenHash)) != 1 {
		return nil, fmt.Errorf("device token mismatch: %w", domain.ErrDeviceTokenInvalid)
	}

	if p.PublicKeyB64 == existing.PublicKeyB64 {
		devicesRegisteredTotal.Add(ctx, 1)
		return &RegisterDeviceResult{Device: existing}, nil
	}

	oldFP := chatdomain.KeyFingerprint(existing.PublicKeyB64, domain.KeyFingerprintHexLen)
	newFP := chatdomain.KeyFingerprint(p.PublicKeyB64, domain.KeyFingerprintHexLen)
	rotated := chatdomain.Device{
		ID:           existing.ID,
		PublicKeyB64: p.PublicKeyB64,
		KeyVersion:   existing.KeyVersion + 1,
		Name:         p.Name,
		CreatedAt:    existing.CreatedAt,
	}
	event := &chatdomain.DeviceKeyEvent{
		DeviceID:       existing.ID,
		OldFingerprint: oldFP,
		NewFingerprint: newFP,
		CreatedAt:      s.clock.Now(),
	}
	stored, err := s.devices.Register(ctx, rotated, auth.TokenHash, event)
	if err != nil {
		return nil, fmt.Errorf("rotate device key: %w", err)
	}
	devicesRegisteredTotal.Add(ctx, 1)
	return &RegisterDeviceResult{Device: stored, Rotated: true}, nil
}
