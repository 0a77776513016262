package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ authdomain.SessionRepo = (*SessionRepo)(nil)

// SessionRepo persists sessions against Postgres.
type SessionRepo struct {
	pool *pgdb.Pool
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(pool *pgdb.Pool) *SessionRepo { return &SessionRepo{pool: pool} }

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s authdomain.Session) error {
	ctx, span := tracer.Start(ctx, "pg.sessions.create")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO sessions (sid_hash, account_id, device_id, created_at, last_seen_at, expires_at)
		 VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)`,
		s.SIDHash, s.AccountID.String(), s.DeviceID, s.CreatedAt, s.LastSeenAt, s.ExpiresAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindBySIDHash looks up a session by its sha256 hash.
func (r *SessionRepo) FindBySIDHash(ctx context.Context, sidHash string) (authdomain.Session, error) {
	ctx, span := tracer.Start(ctx, "pg.sessions.find_by_sid_hash")
	defer span.End()

	var s authdomain.Session
	var accountID string
	var deviceID *string
	var revokedAt *time.Time
	err := r.pool.DB.QueryRow(ctx,
		`SELECT sid_hash, account_id, device_id, created_at, last_seen_at, expires_at, revoked_at
		 FROM sessions WHERE sid_hash = $1`, sidHash,
	).Scan(&s.SIDHash, &accountID, &deviceID, &s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.Session{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Session{}, fmt.Errorf("find session: %w", err)
	}
	s.AccountID = kerneldomain.MustAccountID(accountID)
	if deviceID != nil {
		s.DeviceID = *deviceID
	}
	s.RevokedAt = revokedAt
	return s, nil
}

// TouchLastSeen updates last_seen_at on every authenticated lookup.
func (r *SessionRepo) TouchLastSeen(ctx context.Context, sidHash string, now time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.sessions.touch_last_seen")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE sessions SET last_seen_at = $1 WHERE sid_hash = $2`, now, sidHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke sets revoked_at, idempotent on an already-revoked or missing row.
func (r *SessionRepo) Revoke(ctx context.Context, sidHash string, now time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.sessions.revoke")
	defer span.End()

	ct, err := r.pool.DB.Exec(ctx,
		`UPDATE sessions SET revoked_at = $1 WHERE sid_hash = $2 AND revoked_at IS NULL`, now, sidHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("revoke session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return kerneldomain.ErrNotFound
	}
	return nil
}

// DeleteExpiredBefore purges sessions dead before cutoff (revoked, or past
// absolute/idle expiry), part of the maintenance sweep.
func (r *SessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.sessions.delete_expired")
	defer span.End()

	ct, err := r.pool.DB.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, cutoff,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}
