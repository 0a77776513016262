package app_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
)

// signedRegisterKeysParams builds a RegisterKeysParams whose signature
// genuinely verifies against a fresh Ed25519 key pair.
func signedRegisterKeysParams(t *testing.T, deviceID domain.DeviceID) app.RegisterKeysParams {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	p := app.RegisterKeysParams{
		DeviceID:              deviceID,
		IdentityKeyB64:        base64.StdEncoding.EncodeToString([]byte("identity-key")),
		IdentitySigningKeyB64: base64.StdEncoding.EncodeToString(pub),
		SignedPrekeyID:        7,
		SignedPrekeyB64:       base64.StdEncoding.EncodeToString([]byte("signed-prekey")),
		V2Only:                true,
		SignedPrekeySigAlg:    "ed25519",
	}
	msg := chatdomain.RegisterKeysSignedMessage(deviceID.String(), p.IdentityKeyB64, p.SignedPrekeyID, p.SignedPrekeyB64)
	p.SignedPrekeySigB64 = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, msg))
	return p
}

func TestRegisterKeys(t *testing.T) {
	t.Run("valid signature persists identity, signed prekey, and v2-only state", func(t *testing.T) {
		h := newHarness(t)
		p := signedRegisterKeysParams(t, testDeviceID)

		var gotState chatdomain.DeviceProtocolState
		h.keyBundles.upsertProtocolFn = func(_ context.Context, s chatdomain.DeviceProtocolState) error {
			gotState = s
			return nil
		}

		require.NoError(t, h.svc.RegisterKeys(context.Background(), p))
		assert.Equal(t, domain.ProtocolV2Libsignal, gotState.ProtocolFloor)
		assert.True(t, gotState.SupportsV2)
		assert.True(t, gotState.V2Only)
		assert.True(t, gotState.StrictV2())
	})

	t.Run("v2_only=false rejected before any write", func(t *testing.T) {
		h := newHarness(t)
		p := signedRegisterKeysParams(t, testDeviceID)
		p.V2Only = false

		wroteIdentity := false
		h.keyBundles.upsertIdentityFn = func(_ context.Context, _ chatdomain.IdentityKey) error {
			wroteIdentity = true
			return nil
		}

		err := h.svc.RegisterKeys(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.False(t, wroteIdentity)
	})

	t.Run("non-ed25519 sig alg rejected", func(t *testing.T) {
		h := newHarness(t)
		p := signedRegisterKeysParams(t, testDeviceID)
		p.SignedPrekeySigAlg = "rsa-pss"

		err := h.svc.RegisterKeys(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("tampered signed prekey fails verification", func(t *testing.T) {
		h := newHarness(t)
		p := signedRegisterKeysParams(t, testDeviceID)
		p.SignedPrekeyB64 = base64.StdEncoding.EncodeToString([]byte("swapped-prekey"))

		err := h.svc.RegisterKeys(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("signature from a different device id fails verification", func(t *testing.T) {
		h := newHarness(t)
		p := signedRegisterKeysParams(t, testDeviceID)
		p.DeviceID = testRecipientID

		err := h.svc.RegisterKeys(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestUploadPrekeys(t *testing.T) {
	makeBatch := func(n int) []app.UploadPrekey {
		out := make([]app.UploadPrekey, n)
		for i := range out {
			out[i] = app.UploadPrekey{KeyID: int64(i + 1), KeyB64: "a2V5"}
		}
		return out
	}

	t.Run("valid batch inserted with creation timestamps", func(t *testing.T) {
		h := newHarness(t)

		var inserted []chatdomain.OneTimePrekey
		h.keyBundles.insertOneTimeFn = func(_ context.Context, ps []chatdomain.OneTimePrekey) error {
			inserted = ps
			return nil
		}

		require.NoError(t, h.svc.UploadPrekeys(context.Background(), app.UploadPrekeysParams{
			DeviceID: testDeviceID,
			Prekeys:  makeBatch(3),
		}))
		require.Len(t, inserted, 3)
		assert.Equal(t, testStart, inserted[0].CreatedAt)
		assert.Equal(t, int64(1), inserted[0].KeyID)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.UploadPrekeys(context.Background(), app.UploadPrekeysParams{DeviceID: testDeviceID})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("oversized batch rejected", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.UploadPrekeys(context.Background(), app.UploadPrekeysParams{
			DeviceID: testDeviceID,
			Prekeys:  makeBatch(domain.MaxOneTimePrekeysPerUpload + 1),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("non-positive key_id rejected", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.UploadPrekeys(context.Background(), app.UploadPrekeysParams{
			DeviceID: testDeviceID,
			Prekeys:  []app.UploadPrekey{{KeyID: 0, KeyB64: "a2V5"}},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("duplicate key_id within batch rejected", func(t *testing.T) {
		h := newHarness(t)
		err := h.svc.UploadPrekeys(context.Background(), app.UploadPrekeysParams{
			DeviceID: testDeviceID,
			Prekeys: []app.UploadPrekey{
				{KeyID: 5, KeyB64: "YQ=="},
				{KeyID: 5, KeyB64: "Yg=="},
			},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestGetKeyBundle(t *testing.T) {
	t.Run("returns the consumed bundle", func(t *testing.T) {
		h := newHarness(t)
		prekeyID := int64(42)
		h.keyBundles.fetchAndConsumeFn = func(_ context.Context, id domain.DeviceID) (chatdomain.KeyBundle, error) {
			return chatdomain.KeyBundle{
				DeviceID:         id,
				IdentityKeyB64:   "aWs=",
				SignedPrekey:     chatdomain.SignedPrekey{DeviceID: id, KeyID: 7, PublicKeyB64: "c3Br"},
				OneTimePrekeyID:  &prekeyID,
				OneTimePrekeyB64: "b3Rw",
			}, nil
		}

		bundle, err := h.svc.GetKeyBundle(context.Background(), testRecipientID)
		require.NoError(t, err)
		require.NotNil(t, bundle.OneTimePrekeyID)
		assert.Equal(t, int64(42), *bundle.OneTimePrekeyID)
	})

	t.Run("exhausted one-time prekeys still yields a bundle", func(t *testing.T) {
		h := newHarness(t)
		h.keyBundles.fetchAndConsumeFn = func(_ context.Context, id domain.DeviceID) (chatdomain.KeyBundle, error) {
			return chatdomain.KeyBundle{DeviceID: id, IdentityKeyB64: "aWs="}, nil
		}

		bundle, err := h.svc.GetKeyBundle(context.Background(), testRecipientID)
		require.NoError(t, err)
		assert.Nil(t, bundle.OneTimePrekeyID)
	})

	t.Run("policy gate failure surfaces as opaque not-found", func(t *testing.T) {
		h := newHarness(t)
		h.keyBundles.fetchAndConsumeFn = func(_ context.Context, _ domain.DeviceID) (chatdomain.KeyBundle, error) {
			return chatdomain.KeyBundle{}, domain.ErrKeyBundleUnavailable
		}

		_, err := h.svc.GetKeyBundle(context.Background(), testRecipientID)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrKeyBundleUnavailable)
		assert.Equal(t, 404, errmap.ToHTTPStatusCode(err), "bundle policy violations map to 404, never 403")
	})
}
