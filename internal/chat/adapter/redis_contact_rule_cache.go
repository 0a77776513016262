package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	redisclient "github.com/shamell/shamell/internal/redis"
)

// contactRuleCacheTTL bounds staleness after an Upsert on a replica that
// missed the invalidation (never relied upon: every Upsert also deletes
// the key it would otherwise have staled).
const contactRuleCacheTTL = 5 * time.Minute

// CachedContactRuleRepo wraps a ContactRuleRepo with a Redis read-through
// cache on the single-rule Find lookup, the hot path on every message send
// (SendDirect consults the contact rule on every send). Cache-invalidate-
// on-write: writes go
// straight to the backing repo and evict the cache key, reads consult the
// cache first and fall back to the backing repo on miss or Redis failure.
type CachedContactRuleRepo struct {
	backing chatdomain.ContactRuleRepo
	cmd     redisclient.Cmdable
}

// NewCachedContactRuleRepo wraps backing with a Redis cache over cmd.
func NewCachedContactRuleRepo(backing chatdomain.ContactRuleRepo, cmd redisclient.Cmdable) *CachedContactRuleRepo {
	return &CachedContactRuleRepo{backing: backing, cmd: cmd}
}

var _ chatdomain.ContactRuleRepo = (*CachedContactRuleRepo)(nil)

func contactRuleCacheKey(deviceID, peerID kerneldomain.DeviceID) string {
	return "contact_rule:" + deviceID.String() + ":" + peerID.String()
}

// Find consults the Redis cache before falling back to the backing repo. A
// Redis read failure is not fatal: it degrades to reading straight through,
// since a missed rule cache can only ever make delivery behavior (mute,
// hide) too permissive for one request, never a security decision.
func (c *CachedContactRuleRepo) Find(ctx context.Context, deviceID, peerID kerneldomain.DeviceID) (chatdomain.ContactRule, error) {
	ctx, span := tracer.Start(ctx, "redis.contact_rule_cache.find")
	span.SetAttributes(attribute.String("db.system", "redis"))
	defer span.End()

	key := contactRuleCacheKey(deviceID, peerID)
	if raw, err := c.cmd.Get(ctx, key).Result(); err == nil {
		var rule chatdomain.ContactRule
		if jsonErr := json.Unmarshal([]byte(raw), &rule); jsonErr == nil {
			rule.DeviceID = deviceID
			rule.PeerID = peerID
			return rule, nil
		}
	} else if !errors.Is(err, redisclient.Nil) {
		span.RecordError(err)
	}

	rule, err := c.backing.Find(ctx, deviceID, peerID)
	if err != nil {
		return chatdomain.ContactRule{}, err
	}
	if raw, err := json.Marshal(rule); err == nil {
		_ = c.cmd.Set(ctx, key, raw, contactRuleCacheTTL).Err()
	}
	return rule, nil
}

// Upsert writes through to the backing repo and evicts the cache entry so
// the next Find observes the new rule immediately.
func (c *CachedContactRuleRepo) Upsert(ctx context.Context, r chatdomain.ContactRule) error {
	ctx, span := tracer.Start(ctx, "redis.contact_rule_cache.upsert")
	span.SetAttributes(attribute.String("db.system", "redis"))
	defer span.End()

	if err := c.backing.Upsert(ctx, r); err != nil {
		return err
	}
	key := contactRuleCacheKey(r.DeviceID, r.PeerID)
	if err := c.cmd.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("evict contact rule cache %q: %w", key, err)
	}
	return nil
}

func (c *CachedContactRuleRepo) BlockedOrHiddenPeers(ctx context.Context, deviceID kerneldomain.DeviceID) (map[kerneldomain.DeviceID]bool, error) {
	return c.backing.BlockedOrHiddenPeers(ctx, deviceID)
}

func (c *CachedContactRuleRepo) MutedSenders(ctx context.Context, deviceID kerneldomain.DeviceID) (map[kerneldomain.DeviceID]bool, error) {
	return c.backing.MutedSenders(ctx, deviceID)
}

func (c *CachedContactRuleRepo) FindGroupPref(ctx context.Context, deviceID kerneldomain.DeviceID, groupID kerneldomain.GroupID) (chatdomain.GroupPref, error) {
	return c.backing.FindGroupPref(ctx, deviceID, groupID)
}
