package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/auth/app"
	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
)

func TestBiometricEnroll(t *testing.T) {
	accountID := domain.GenerateAccountID()

	t.Run("issues a token and stores only its device-bound hash", func(t *testing.T) {
		h := newTestHarness(t)

		var stored authdomain.BiometricToken
		h.biometrics.upsertFn = func(_ context.Context, tok authdomain.BiometricToken) error {
			stored = tok
			return nil
		}

		result, err := h.svc.BiometricEnroll(context.Background(), accountID, "dev-abc")
		require.NoError(t, err)
		require.NotEmpty(t, result.RawToken)
		assert.Len(t, result.RawToken, 64, "256-bit token rendered as hex")
		assert.Equal(t, authdomain.BiometricTokenHash("dev-abc", result.RawToken), stored.TokenHash)
		assert.Equal(t, accountID, stored.AccountID)
		assert.Equal(t, testStart.Add(domain.BiometricTokenTTL), stored.ExpiresAt)
	})

	t.Run("missing device id rejected", func(t *testing.T) {
		h := newTestHarness(t)
		_, err := h.svc.BiometricEnroll(context.Background(), accountID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestBiometricLogin(t *testing.T) {
	accountID := domain.GenerateAccountID()

	enrollment := func(h *testHarness, raw string) {
		h.biometrics.findFn = func(_ context.Context, tokenHash, deviceID string) (authdomain.BiometricToken, error) {
			if tokenHash != authdomain.BiometricTokenHash("dev-abc", raw) || deviceID != "dev-abc" {
				return authdomain.BiometricToken{}, domain.ErrNotFound
			}
			return authdomain.BiometricToken{
				TokenHash: tokenHash,
				AccountID: accountID,
				DeviceID:  deviceID,
				ExpiresAt: testStart.Add(time.Hour),
			}, nil
		}
	}

	t.Run("valid token issues a device-scoped session", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")

		var created authdomain.Session
		h.sessions.createFn = func(_ context.Context, sess authdomain.Session) error {
			created = sess
			return nil
		}

		result, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "raw-bio-token", ClientIP: "203.0.113.5",
		})
		require.NoError(t, err)
		assert.Equal(t, accountID, result.AccountID)
		require.NotEmpty(t, result.SessionToken)
		assert.Equal(t, authdomain.HashToken(result.SessionToken), created.SIDHash)
		assert.Equal(t, "dev-abc", created.DeviceID)
		assert.Empty(t, result.NewBiometricToken, "no rotation unless requested")
	})

	t.Run("unknown token: unauthorized", func(t *testing.T) {
		h := newTestHarness(t)

		_, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "never-enrolled",
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("expired enrollment: unauthorized", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")
		h.clock.Advance(2 * time.Hour)

		_, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "raw-bio-token",
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("same token from another device: unauthorized", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")

		_, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-other", RawToken: "raw-bio-token",
		})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rotation swaps the token when the update wins", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")

		var gotOld, gotNew string
		h.biometrics.rotateFn = func(_ context.Context, _ domain.AccountID, _, oldHash, newHash string, _ time.Time) (bool, error) {
			gotOld, gotNew = oldHash, newHash
			return true, nil
		}

		result, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "raw-bio-token", Rotate: true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.NewBiometricToken)
		assert.Equal(t, authdomain.BiometricTokenHash("dev-abc", "raw-bio-token"), gotOld)
		assert.Equal(t, authdomain.BiometricTokenHash("dev-abc", result.NewBiometricToken), gotNew)
	})

	t.Run("lost rotation race keeps the old token valid", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")
		h.biometrics.rotateFn = func(_ context.Context, _ domain.AccountID, _, _, _ string, _ time.Time) (bool, error) {
			return false, nil
		}

		result, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "raw-bio-token", Rotate: true,
		})
		require.NoError(t, err)
		assert.Empty(t, result.NewBiometricToken)
	})

	t.Run("per-device rate limit denies", func(t *testing.T) {
		h := newTestHarness(t)
		enrollment(h, "raw-bio-token")
		h.limiter.allowFn = func(_ context.Context, key string, _ int, _ time.Duration, _ time.Time) (bool, error) {
			return false, nil
		}

		_, err := h.svc.BiometricLogin(context.Background(), app.BiometricLoginParams{
			DeviceID: "dev-abc", RawToken: "raw-bio-token",
		})
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}
