package adapter_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/chat/adapter"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
	redisclient "github.com/shamell/shamell/internal/redis"
)

// stubContactRules counts hits so the tests can observe whether the cache
// or the backing repo served a Find.
type stubContactRules struct {
	chatdomain.ContactRuleRepo

	findCalls int
	rule      chatdomain.ContactRule
	upserts   []chatdomain.ContactRule
}

func (s *stubContactRules) Find(_ context.Context, deviceID, peerID domain.DeviceID) (chatdomain.ContactRule, error) {
	s.findCalls++
	r := s.rule
	r.DeviceID = deviceID
	r.PeerID = peerID
	return r, nil
}

func (s *stubContactRules) Upsert(_ context.Context, r chatdomain.ContactRule) error {
	s.upserts = append(s.upserts, r)
	s.rule = r
	return nil
}

func newCacheUnderTest(t *testing.T) (*adapter.CachedContactRuleRepo, *stubContactRules) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backing := &stubContactRules{}
	return adapter.NewCachedContactRuleRepo(backing, client.RDB), backing
}

var (
	cacheDeviceID = domain.MustDeviceID("dev-cache-01")
	cachePeerID   = domain.MustDeviceID("dev-cache-02")
)

func TestCachedContactRuleRepo_Find(t *testing.T) {
	t.Run("second read served from cache", func(t *testing.T) {
		cache, backing := newCacheUnderTest(t)
		backing.rule = chatdomain.ContactRule{Muted: true}

		first, err := cache.Find(context.Background(), cacheDeviceID, cachePeerID)
		require.NoError(t, err)
		assert.True(t, first.Muted)
		assert.Equal(t, 1, backing.findCalls)

		second, err := cache.Find(context.Background(), cacheDeviceID, cachePeerID)
		require.NoError(t, err)
		assert.True(t, second.Muted)
		assert.Equal(t, cacheDeviceID, second.DeviceID, "ids restored on the cached path")
		assert.Equal(t, 1, backing.findCalls, "cache hit must not reach Postgres")
	})

	t.Run("upsert evicts so the next read sees the new rule", func(t *testing.T) {
		cache, backing := newCacheUnderTest(t)
		backing.rule = chatdomain.ContactRule{}

		_, err := cache.Find(context.Background(), cacheDeviceID, cachePeerID)
		require.NoError(t, err)

		require.NoError(t, cache.Upsert(context.Background(), chatdomain.ContactRule{
			DeviceID: cacheDeviceID, PeerID: cachePeerID, Blocked: true,
		}))
		require.Len(t, backing.upserts, 1)

		updated, err := cache.Find(context.Background(), cacheDeviceID, cachePeerID)
		require.NoError(t, err)
		assert.True(t, updated.Blocked)
		assert.Equal(t, 2, backing.findCalls, "eviction forces one fresh read")
	})
}
