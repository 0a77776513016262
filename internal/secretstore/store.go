// Package secretstore provides a TTL-cached, cooldown-refreshed accessor for
// the plain secret values Shamell's services need at runtime: the OTP/HMAC
// pepper, the bus-ticket signing secret, and the internal service-to-service
// shared secret. These are opaque byte strings, not key pairs; the caching
// discipline is: serve from cache, refresh on TTL expiry, cool down on
// repeated misses.
package secretstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/shamell/shamell/internal/domain"
)

// smClient is the narrow consumer-defined interface for Secrets Manager
// operations. Only this package imports the Secrets Manager SDK.
type smClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ssmClient is the narrow consumer-defined interface for the SSM Parameter
// Store fallback. Only this package imports the SSM SDK.
type ssmClient interface {
	GetParameter(ctx context.Context, params *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
}

// Store serves named secret values with a bounded staleness window.
type Store interface {
	// Get returns the current value for name, refreshing from the backing
	// store if the cached value has exceeded its TTL.
	Get(ctx context.Context, name string) (domain.SecretBytes, error)
}

// AWSStore implements Store against AWS Secrets Manager.
//
// Secrets are cached with a configurable TTL (default
// domain.SecretStoreCacheTTL) and refreshed lazily on read. A cache miss for
// a name not seen before is subject to domain.SecretStoreCooldown so a
// misconfigured caller repeatedly requesting an unknown name cannot hammer
// Secrets Manager.
type AWSStore struct {
	sm    smClient
	ssm   ssmClient // optional Parameter Store fallback; nil disables it
	clock domain.Clock

	mu          sync.RWMutex
	values      map[string]cachedSecret
	cacheTTL    time.Duration
	missCooldown time.Duration
	lastMiss    map[string]time.Time
}

type cachedSecret struct {
	value     domain.SecretBytes
	loadedAt  time.Time
}

// NewAWSStore creates an AWSStore. ssm may be nil to disable the Parameter
// Store fallback. cacheTTL/missCooldown fall back to the domain package
// defaults when zero.
func NewAWSStore(sm smClient, ssm ssmClient, clock domain.Clock, cacheTTL, missCooldown time.Duration) *AWSStore {
	if cacheTTL <= 0 {
		cacheTTL = domain.SecretStoreCacheTTL
	}
	if missCooldown <= 0 {
		missCooldown = domain.SecretStoreCooldown
	}
	return &AWSStore{
		sm:           sm,
		ssm:          ssm,
		clock:        clock,
		values:       make(map[string]cachedSecret),
		cacheTTL:     cacheTTL,
		missCooldown: missCooldown,
		lastMiss:     make(map[string]time.Time),
	}
}

// Get returns the cached value for name if fresh, otherwise fetches it from
// Secrets Manager and refreshes the cache entry.
func (s *AWSStore) Get(ctx context.Context, name string) (domain.SecretBytes, error) {
	now := s.clock.Now()

	s.mu.RLock()
	entry, ok := s.values[name]
	fresh := ok && now.Sub(entry.loadedAt) <= s.cacheTTL
	lastMiss, missed := s.lastMiss[name]
	s.mu.RUnlock()

	if fresh {
		return entry.value, nil
	}

	if !ok && missed && now.Sub(lastMiss) <= s.missCooldown {
		return domain.SecretBytes{}, fmt.Errorf("secret %q not found (cooldown active)", name)
	}

	value, err := s.fetch(ctx, name)
	if err != nil {
		if !ok {
			s.mu.Lock()
			s.lastMiss[name] = now
			s.mu.Unlock()
		}
		return domain.SecretBytes{}, err
	}

	s.mu.Lock()
	s.values[name] = cachedSecret{value: value, loadedAt: now}
	delete(s.lastMiss, name)
	s.mu.Unlock()

	return value, nil
}

// StaticStore serves a fixed, in-memory set of secret values. It exists for
// local development and tests: no AWS dependency, same Store interface,
// used only when config.IsLocal().
type StaticStore struct {
	values map[string]domain.SecretBytes
}

// NewStaticStore creates a StaticStore serving exactly the given values.
func NewStaticStore(values map[string]domain.SecretBytes) *StaticStore {
	return &StaticStore{values: values}
}

// Get returns the configured value for name, or an error if name was never
// registered.
func (s *StaticStore) Get(_ context.Context, name string) (domain.SecretBytes, error) {
	v, ok := s.values[name]
	if !ok {
		return domain.SecretBytes{}, fmt.Errorf("secret %q not configured in static store", name)
	}
	return v, nil
}

func (s *AWSStore) fetch(ctx context.Context, name string) (domain.SecretBytes, error) {
	out, err := s.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		if s.ssm != nil {
			return s.fetchParameter(ctx, name, err)
		}
		return domain.SecretBytes{}, fmt.Errorf("fetching secret %q: %w", name, err)
	}

	switch {
	case out.SecretString != nil:
		return domain.SecretBytes(*out.SecretString), nil
	case out.SecretBinary != nil:
		return domain.SecretBytes(out.SecretBinary), nil
	default:
		return domain.SecretBytes{}, fmt.Errorf("secret %q has no value", name)
	}
}

// fetchParameter is the SSM Parameter Store fallback for names provisioned
// as parameters rather than Secrets Manager secrets (ops-managed plain
// values like the Play Integrity decode URL key). smErr is the Secrets
// Manager failure that triggered the fallback, reported when SSM also
// misses so the operator sees both lookups.
func (s *AWSStore) fetchParameter(ctx context.Context, name string, smErr error) (domain.SecretBytes, error) {
	out, err := s.ssm.GetParameter(ctx, &awsssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return domain.SecretBytes{}, fmt.Errorf("fetching secret %q: secrets manager: %v; ssm: %w", name, smErr, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return domain.SecretBytes{}, fmt.Errorf("parameter %q has no value", name)
	}
	return domain.SecretBytes(*out.Parameter.Value), nil
}
