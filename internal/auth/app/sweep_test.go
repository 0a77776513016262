package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_AggregatesAcrossRepos(t *testing.T) {
	h := newTestHarness(t)
	h.sessions.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 3, nil }
	h.deviceLogins.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 1, nil }
	h.biometrics.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 4, nil }
	h.contactInvites.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 2, nil }
	h.limiter.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 5, nil }

	result, err := h.svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Sessions)
	assert.EqualValues(t, 1, result.DeviceLogins)
	assert.EqualValues(t, 4, result.BiometricTokens)
	assert.EqualValues(t, 2, result.ContactInvites)
	assert.EqualValues(t, 5, result.RateLimits)
}

func TestSweep_PropagatesFirstError(t *testing.T) {
	h := newTestHarness(t)
	boom := assert.AnError
	h.sessions.deleteExpiredFn = func(ctx context.Context, cutoff time.Time) (int64, error) { return 0, boom }

	_, err := h.svc.Sweep(context.Background(), time.Hour)
	require.Error(t, err)
}
