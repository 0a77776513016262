package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
)

func TestDeviceLoginStart_Success(t *testing.T) {
	h := newTestHarness(t)
	var created authdomain.DeviceLoginChallenge
	h.deviceLogins.createFn = func(ctx context.Context, c authdomain.DeviceLoginChallenge) error {
		created = c
		return nil
	}

	result, err := h.svc.DeviceLoginStart(context.Background(), "my-laptop", "203.0.113.1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)
	assert.Equal(t, authdomain.HashToken(result.RawToken), created.TokenHash)
	assert.Equal(t, authdomain.DeviceLoginPending, created.Status)
}

func TestDeviceLoginApprove_BindsAccount(t *testing.T) {
	h := newTestHarness(t)
	accountID := domain.GenerateAccountID()

	h.deviceLogins.lockFn = func(ctx context.Context, th string) (authdomain.DeviceLoginChallenge, error) {
		return authdomain.DeviceLoginChallenge{
			TokenHash: th,
			Status:    authdomain.DeviceLoginPending,
			ExpiresAt: h.clock.Now().Add(time.Hour),
		}, nil
	}
	var approvedAccount domain.AccountID
	h.deviceLogins.approveFn = func(ctx context.Context, th string, acct domain.AccountID, now time.Time) error {
		approvedAccount = acct
		return nil
	}

	err := h.svc.DeviceLoginApprove(context.Background(), "raw-token", accountID)
	require.NoError(t, err)
	assert.Equal(t, accountID, approvedAccount)
}

func TestDeviceLoginApprove_AlreadyBoundToAnotherAccount(t *testing.T) {
	h := newTestHarness(t)
	boundAccount := domain.GenerateAccountID()
	otherAccount := domain.GenerateAccountID()

	h.deviceLogins.lockFn = func(ctx context.Context, th string) (authdomain.DeviceLoginChallenge, error) {
		return authdomain.DeviceLoginChallenge{
			Status:    authdomain.DeviceLoginApproved,
			AccountID: &boundAccount,
			ExpiresAt: h.clock.Now().Add(time.Hour),
		}, nil
	}

	err := h.svc.DeviceLoginApprove(context.Background(), "raw-token", otherAccount)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceLoginBound)
}

func TestDeviceLoginApprove_ExpiredChallenge(t *testing.T) {
	h := newTestHarness(t)
	h.deviceLogins.lockFn = func(ctx context.Context, th string) (authdomain.DeviceLoginChallenge, error) {
		return authdomain.DeviceLoginChallenge{
			Status:    authdomain.DeviceLoginPending,
			ExpiresAt: h.clock.Now().Add(-time.Minute),
		}, nil
	}

	err := h.svc.DeviceLoginApprove(context.Background(), "raw-token", domain.GenerateAccountID())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeviceLoginRedeem_Success(t *testing.T) {
	h := newTestHarness(t)
	accountID := domain.GenerateAccountID()

	h.deviceLogins.lockFn = func(ctx context.Context, th string) (authdomain.DeviceLoginChallenge, error) {
		return authdomain.DeviceLoginChallenge{
			Status:    authdomain.DeviceLoginApproved,
			AccountID: &accountID,
			ExpiresAt: h.clock.Now().Add(time.Hour),
		}, nil
	}
	redeemed := false
	h.deviceLogins.redeemFn = func(ctx context.Context, th string) error {
		redeemed = true
		return nil
	}
	sessionCreated := false
	h.sessions.createFn = func(ctx context.Context, s authdomain.Session) error {
		sessionCreated = true
		assert.Equal(t, accountID, s.AccountID)
		return nil
	}

	result, err := h.svc.DeviceLoginRedeem(context.Background(), "raw-token", "new-device")
	require.NoError(t, err)
	assert.Equal(t, accountID, result.AccountID)
	assert.NotEmpty(t, result.SessionToken)
	assert.True(t, redeemed)
	assert.True(t, sessionCreated)
}

func TestDeviceLoginRedeem_NotYetApproved(t *testing.T) {
	h := newTestHarness(t)
	h.deviceLogins.lockFn = func(ctx context.Context, th string) (authdomain.DeviceLoginChallenge, error) {
		return authdomain.DeviceLoginChallenge{
			Status:    authdomain.DeviceLoginPending,
			ExpiresAt: h.clock.Now().Add(time.Hour),
		}, nil
	}

	_, err := h.svc.DeviceLoginRedeem(context.Background(), "raw-token", "new-device")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeviceLoginNotReady)
}
