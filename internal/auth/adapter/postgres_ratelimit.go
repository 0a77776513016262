package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ authdomain.RateLimiter = (*RateLimiter)(nil)

// RateLimiter implements a Postgres-backed fixed-window token bucket: one
// row per key, serialized with BEGIN; INSERT ... ON CONFLICT DO NOTHING;
// SELECT ... FOR UPDATE — the SQL equivalent of an atomic Lua increment.
type RateLimiter struct {
	pool *pgdb.Pool
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(pool *pgdb.Pool) *RateLimiter { return &RateLimiter{pool: pool} }

// Allow consumes one unit from the bucket identified by key. Fails closed:
// any Postgres error is treated as a denial-worthy error, never a silent
// allow.
func (r *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "pg.ratelimit.allow")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO rate_limit_buckets (key, window_start_epoch, request_count, updated_at)
		 VALUES ($1, $2, 0, $2) ON CONFLICT (key) DO NOTHING`,
		key, now,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("upsert rate limit bucket: %w", err)
	}

	var windowStart time.Time
	var count int
	if err := tx.QueryRow(ctx,
		`SELECT window_start_epoch, request_count FROM rate_limit_buckets WHERE key = $1 FOR UPDATE`, key,
	).Scan(&windowStart, &count); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("select rate limit bucket: %w", err)
	}

	allowed := true
	if now.Sub(windowStart) >= window {
		windowStart = now
		count = 1
	} else if count < max {
		count++
	} else {
		allowed = false
	}

	if allowed {
		if _, err := tx.Exec(ctx,
			`UPDATE rate_limit_buckets SET window_start_epoch = $1, request_count = $2, updated_at = $3 WHERE key = $4`,
			windowStart, count, now, key,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("update rate limit bucket: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rate limit tx: %w", err)
	}
	return allowed, nil
}

// DeleteExpiredBefore purges idle rate-limit rows.
func (r *RateLimiter) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.ratelimit.delete_expired")
	defer span.End()

	ct, err := r.pool.DB.Exec(ctx, `DELETE FROM rate_limit_buckets WHERE updated_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("sweep rate limit buckets: %w", err)
	}
	return ct.RowsAffected(), nil
}
