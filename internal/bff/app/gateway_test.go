package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bffapp "github.com/shamell/shamell/internal/bff/app"
	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/domain/domaintest"
)

var testStart = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type fakeUpstreamCaller struct {
	callFn func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error)
}

func (f *fakeUpstreamCaller) Call(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
	return f.callFn(ctx, upstream, req)
}

func jsonResponse(status int, v any) *bffdomain.CallResponse {
	b, _ := json.Marshal(v)
	return &bffdomain.CallResponse{StatusCode: status, Body: b}
}

func newTestGateway(caller bffdomain.UpstreamCaller) *bffapp.Gateway {
	return bffapp.NewGateway(bffapp.Config{
		Upstream: caller,
		Clock:    domaintest.NewFakeClock(testStart),
		Log:      nil,
	})
}

func TestResolveSession_Success(t *testing.T) {
	caller := &fakeUpstreamCaller{callFn: func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
		assert.Equal(t, bffdomain.UpstreamAuth, upstream)
		assert.Equal(t, "/internal/sessions/validate", req.Path)
		return jsonResponse(http.StatusOK, map[string]string{
			"account_id": "acct-1", "phone": "+15551234567", "device_id": "dev-abc",
		}), nil
	}}
	gw := newTestGateway(caller)

	p, err := gw.ResolveSession(context.Background(), "raw-token")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", p.AccountID)
	assert.Equal(t, "dev-abc", p.DeviceID)
}

func TestResolveSession_EmptyToken(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{callFn: func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
		t.Fatal("must not call upstream for an empty token")
		return nil, nil
	}})
	_, err := gw.ResolveSession(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolveSession_UpstreamUnauthorized(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{callFn: func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
		return &bffdomain.CallResponse{StatusCode: http.StatusUnauthorized}, nil
	}})
	_, err := gw.ResolveSession(context.Background(), "expired-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestEnsureWallet_StampsWalletID(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{callFn: func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
		assert.Equal(t, bffdomain.UpstreamLedger, upstream)
		assert.Equal(t, "/users", req.Path)
		return jsonResponse(http.StatusOK, map[string]string{"wallet_id": "wallet-1"}), nil
	}})

	p := &bffdomain.Principal{AccountID: "acct-1"}
	err := gw.EnsureWallet(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", p.WalletID)
}

func TestVerifyOwnsWallet(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{})
	p := &bffdomain.Principal{WalletID: "wallet-1"}

	assert.NoError(t, gw.VerifyOwnsWallet(context.Background(), p, "wallet-1", false))
	assert.ErrorIs(t, gw.VerifyOwnsWallet(context.Background(), p, "wallet-2", false), domain.ErrForbidden)
	assert.NoError(t, gw.VerifyOwnsWallet(context.Background(), p, "wallet-2", true), "admin bypasses ownership")
}

func TestCheckChatSendPreconditions_RequiresSealedSender(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{})
	p := &bffdomain.Principal{AccountID: "acct-1", DeviceID: "dev-abc"}

	err := gw.CheckChatSendPreconditions(context.Background(), p, false, "dev-abc", "dev-xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSealedSenderRequired)
}

func TestCheckChatSendPreconditions_RequiresDeviceOwnership(t *testing.T) {
	gw := newTestGateway(&fakeUpstreamCaller{})
	p := &bffdomain.Principal{AccountID: "acct-1", DeviceID: "dev-abc"}

	err := gw.CheckChatSendPreconditions(context.Background(), p, true, "dev-someone-else", "dev-xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCheckChatSendPreconditions_ContactEdgeRequired(t *testing.T) {
	gw := bffapp.NewGateway(bffapp.Config{
		Upstream: &fakeUpstreamCaller{callFn: func(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
			return jsonResponse(http.StatusOK, map[string]bool{"edge": false}), nil
		}},
		Clock:                  domaintest.NewFakeClock(testStart),
		ChatEnforceContactEdge: true,
	})
	p := &bffdomain.Principal{AccountID: "acct-1", DeviceID: "dev-abc"}

	err := gw.CheckChatSendPreconditions(context.Background(), p, true, "dev-abc", "dev-xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestValidatePathParam_RejectsForbiddenCharacters(t *testing.T) {
	for _, bad := range []string{"a/b", "a\\b", "a?b", "a#b", "a%b"} {
		assert.Error(t, bffapp.ValidatePathParam(bad), bad)
	}
	assert.NoError(t, bffapp.ValidatePathParam("wallet-123"))
}

func TestRedactWalletID_Object(t *testing.T) {
	in, _ := json.Marshal(map[string]string{"id": "op-1", "wallet_id": "wallet-secret"})
	out := bffapp.RedactWalletID(in)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	_, present := decoded["wallet_id"]
	assert.False(t, present)
	assert.Equal(t, "op-1", decoded["id"])
}

func TestRedactWalletID_Array(t *testing.T) {
	in, _ := json.Marshal([]map[string]string{
		{"id": "op-1", "wallet_id": "wallet-1"},
		{"id": "op-2", "wallet_id": "wallet-2"},
	})
	out := bffapp.RedactWalletID(in)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	for _, obj := range decoded {
		_, present := obj["wallet_id"]
		assert.False(t, present)
	}
}
