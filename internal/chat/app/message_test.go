package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

func validSendParams() app.SendDirectParams {
	return app.SendDirectParams{
		SenderID:        testDeviceID,
		RecipientID:     testRecipientID,
		SealedSender:    true,
		NonceB64:        "bm9uY2U=",
		BoxB64:          "Y2lwaGVydGV4dA==",
		SenderPubKeyB64: "c2VuZGVyLXBr",
		ProtocolVersion: domain.ProtocolV2Libsignal,
		SenderHint:      "hint-1",
	}
}

func TestSendDirect(t *testing.T) {
	t.Run("accepted message stored with sealed_sender forced on", func(t *testing.T) {
		h := newHarness(t)

		var inserted chatdomain.DirectMessage
		h.messages.insertFn = func(_ context.Context, m chatdomain.DirectMessage) (chatdomain.DirectMessage, error) {
			inserted = m
			return m, nil
		}

		msg, err := h.svc.SendDirect(context.Background(), validSendParams())
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.True(t, inserted.SealedSender)
		assert.Equal(t, testStart, inserted.CreatedAt)
		assert.False(t, inserted.ID.IsZero())
	})

	t.Run("sealed_sender=false rejected", func(t *testing.T) {
		h := newHarness(t)
		p := validSendParams()
		p.SealedSender = false

		_, err := h.svc.SendDirect(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSealedSenderRequired)
	})

	t.Run("unknown protocol_version rejected", func(t *testing.T) {
		h := newHarness(t)
		p := validSendParams()
		p.ProtocolVersion = domain.ProtocolVersion("v3_future")

		_, err := h.svc.SendDirect(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("v1 send to v2_only recipient: downgrade rejected", func(t *testing.T) {
		h := newHarness(t)
		h.keyBundles.findProtocolFn = func(_ context.Context, id domain.DeviceID) (chatdomain.DeviceProtocolState, error) {
			if id == testRecipientID {
				return chatdomain.DeviceProtocolState{DeviceID: id, V2Only: true}, nil
			}
			return chatdomain.DeviceProtocolState{DeviceID: id}, nil
		}
		p := validSendParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy

		_, err := h.svc.SendDirect(context.Background(), p)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrProtocolDowngrade)
	})

	t.Run("v1 send from v2_only sender also rejected", func(t *testing.T) {
		h := newHarness(t)
		h.keyBundles.findProtocolFn = func(_ context.Context, id domain.DeviceID) (chatdomain.DeviceProtocolState, error) {
			if id == testDeviceID {
				return chatdomain.DeviceProtocolState{DeviceID: id, V2Only: true}, nil
			}
			return chatdomain.DeviceProtocolState{DeviceID: id}, nil
		}
		p := validSendParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy

		_, err := h.svc.SendDirect(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrProtocolDowngrade)
	})

	t.Run("v1 send between legacy devices passes the guard", func(t *testing.T) {
		h := newHarness(t)
		p := validSendParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy

		msg, err := h.svc.SendDirect(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, domain.ProtocolV1Legacy, msg.ProtocolVersion)
	})

	t.Run("v2 disabled flag blocks v2 writes", func(t *testing.T) {
		h := newHarnessWithPolicy(t, app.ProtocolPolicy{V2Enabled: false, V1WriteEnabled: true})

		_, err := h.svc.SendDirect(context.Background(), validSendParams())
		assert.ErrorIs(t, err, domain.ErrProtocolDisabled)
	})

	t.Run("v1 write disabled flag blocks v1 writes", func(t *testing.T) {
		h := newHarnessWithPolicy(t, app.ProtocolPolicy{V2Enabled: true, V1WriteEnabled: false})
		p := validSendParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy

		_, err := h.svc.SendDirect(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrProtocolDisabled)
	})

	t.Run("duplicate (sender, recipient, nonce, box) returns prior row without insert", func(t *testing.T) {
		h := newHarness(t)
		prior := chatdomain.DirectMessage{
			ID:          domain.GenerateMessageID(),
			SenderID:    testDeviceID,
			RecipientID: testRecipientID,
			NonceB64:    "bm9uY2U=",
			BoxB64:      "Y2lwaGVydGV4dA==",
			CreatedAt:   testStart.Add(-time.Minute),
		}
		h.messages.findDupFn = func(_ context.Context, _, _ domain.DeviceID, _, _ string) (chatdomain.DirectMessage, error) {
			return prior, nil
		}
		insertCalled := false
		h.messages.insertFn = func(_ context.Context, m chatdomain.DirectMessage) (chatdomain.DirectMessage, error) {
			insertCalled = true
			return m, nil
		}

		msg, err := h.svc.SendDirect(context.Background(), validSendParams())
		require.NoError(t, err)
		assert.Equal(t, prior.ID, msg.ID)
		assert.False(t, insertCalled)
	})

	t.Run("wakeup push suppressed when recipient muted the sender", func(t *testing.T) {
		h := newHarness(t)
		h.contactRules.findFn = func(_ context.Context, deviceID, peerID domain.DeviceID) (chatdomain.ContactRule, error) {
			return chatdomain.ContactRule{DeviceID: deviceID, PeerID: peerID, Muted: true}, nil
		}
		pushed := false
		h.pushTokens.listFn = func(_ context.Context, _ []domain.DeviceID) ([]chatdomain.PushToken, error) {
			pushed = true
			return nil, nil
		}

		_, err := h.svc.SendDirect(context.Background(), validSendParams())
		require.NoError(t, err)
		h.svc.Wait()
		assert.False(t, pushed, "muted recipient must not be woken")
	})
}

func TestInbox(t *testing.T) {
	inboxRows := func() []chatdomain.DirectMessage {
		return []chatdomain.DirectMessage{
			{
				ID:              domain.GenerateMessageID(),
				SenderID:        testDeviceID,
				RecipientID:     testRecipientID,
				ProtocolVersion: domain.ProtocolV2Libsignal,
				SenderPubKeyB64: "c2VuZGVyLXBr",
				SenderDHPubB64:  "ZGgtcHVi",
				SenderHint:      "hint-1",
				BoxB64:          "Ym94",
			},
		}
	}

	t.Run("sender identity redacted, hint preserved", func(t *testing.T) {
		h := newHarness(t)
		h.messages.inboxFn = func(_ context.Context, _ domain.DeviceID, _ time.Time, _ int, _ time.Time) ([]chatdomain.DirectMessage, error) {
			return inboxRows(), nil
		}

		rows, err := h.svc.Inbox(context.Background(), app.InboxParams{DeviceID: testRecipientID})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].SenderID.IsZero(), "sender_id must never reach the recipient")
		assert.Empty(t, rows[0].SenderPubKeyB64)
		assert.Empty(t, rows[0].SenderDHPubB64)
		assert.Equal(t, "hint-1", rows[0].SenderHint)
	})

	t.Run("blocked peers filtered out", func(t *testing.T) {
		h := newHarness(t)
		h.messages.inboxFn = func(_ context.Context, _ domain.DeviceID, _ time.Time, _ int, _ time.Time) ([]chatdomain.DirectMessage, error) {
			return inboxRows(), nil
		}
		h.contactRules.blockedHiddenFn = func(_ context.Context, _ domain.DeviceID) (map[domain.DeviceID]bool, error) {
			return map[domain.DeviceID]bool{testDeviceID: true}, nil
		}

		rows, err := h.svc.Inbox(context.Background(), app.InboxParams{DeviceID: testRecipientID})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("v1 rows hidden from v2_only viewer", func(t *testing.T) {
		h := newHarness(t)
		v1Row := inboxRows()[0]
		v1Row.ProtocolVersion = domain.ProtocolV1Legacy
		h.messages.inboxFn = func(_ context.Context, _ domain.DeviceID, _ time.Time, _ int, _ time.Time) ([]chatdomain.DirectMessage, error) {
			return []chatdomain.DirectMessage{v1Row}, nil
		}
		h.keyBundles.findProtocolFn = func(_ context.Context, id domain.DeviceID) (chatdomain.DeviceProtocolState, error) {
			return chatdomain.DeviceProtocolState{DeviceID: id, V2Only: true}, nil
		}

		rows, err := h.svc.Inbox(context.Background(), app.InboxParams{DeviceID: testRecipientID})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("limit clamped to the configured default", func(t *testing.T) {
		h := newHarness(t)
		var gotLimit int
		h.messages.inboxFn = func(_ context.Context, _ domain.DeviceID, _ time.Time, limit int, _ time.Time) ([]chatdomain.DirectMessage, error) {
			gotLimit = limit
			return nil, nil
		}

		_, err := h.svc.Inbox(context.Background(), app.InboxParams{DeviceID: testRecipientID, Limit: 100000})
		require.NoError(t, err)
		assert.Equal(t, domain.InboxDefaultLimit, gotLimit)
	})
}
