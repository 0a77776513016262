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

var _ authdomain.DeviceLoginRepo = (*DeviceLoginRepo)(nil)

// DeviceLoginRepo persists device_login_challenges against Postgres.
type DeviceLoginRepo struct {
	pool *pgdb.Pool
}

// NewDeviceLoginRepo creates a DeviceLoginRepo.
func NewDeviceLoginRepo(pool *pgdb.Pool) *DeviceLoginRepo { return &DeviceLoginRepo{pool: pool} }

// Create inserts a new pending challenge.
func (r *DeviceLoginRepo) Create(ctx context.Context, c authdomain.DeviceLoginChallenge) error {
	ctx, span := tracer.Start(ctx, "pg.device_login.create")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO device_login_challenges (token_hash, label, status, expires_at)
		 VALUES ($1, NULLIF($2,''), $3, $4)`,
		c.TokenHash, c.Label, string(c.Status), c.ExpiresAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert device login challenge: %w", err)
	}
	return nil
}

// LockByTokenHash reads the row FOR UPDATE so concurrent approve/redeem
// calls serialize.
func (r *DeviceLoginRepo) LockByTokenHash(ctx context.Context, tokenHash string) (authdomain.DeviceLoginChallenge, error) {
	ctx, span := tracer.Start(ctx, "pg.device_login.lock")
	defer span.End()

	var c authdomain.DeviceLoginChallenge
	var accountID, deviceID *string
	var approvedAt *time.Time
	var status string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT token_hash, label, status, account_id, device_id, expires_at, approved_at
		 FROM device_login_challenges WHERE token_hash = $1 FOR UPDATE`, tokenHash,
	).Scan(&c.TokenHash, &c.Label, &status, &accountID, &deviceID, &c.ExpiresAt, &approvedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.DeviceLoginChallenge{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.DeviceLoginChallenge{}, fmt.Errorf("lock device login challenge: %w", err)
	}
	c.Status = authdomain.DeviceLoginStatus(status)
	if accountID != nil {
		id := kerneldomain.MustAccountID(*accountID)
		c.AccountID = &id
	}
	if deviceID != nil {
		c.DeviceID = *deviceID
	}
	c.ApprovedAt = approvedAt
	return c, nil
}

// Approve binds the challenge to accountID and marks it approved.
func (r *DeviceLoginRepo) Approve(ctx context.Context, tokenHash string, accountID kerneldomain.AccountID, now time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.device_login.approve")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE device_login_challenges SET status = $1, account_id = $2, approved_at = $3
		 WHERE token_hash = $4`,
		string(authdomain.DeviceLoginApproved), accountID.String(), now, tokenHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("approve device login challenge: %w", err)
	}
	return nil
}

// Redeem deletes the challenge row; callers run this in the same unit of
// work as the new session insert.
func (r *DeviceLoginRepo) Redeem(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "pg.device_login.redeem")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx, `DELETE FROM device_login_challenges WHERE token_hash = $1`, tokenHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("redeem device login challenge: %w", err)
	}
	return nil
}

// DeleteExpiredBefore purges stale pending/approved challenges.
func (r *DeviceLoginRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.device_login.delete_expired")
	defer span.End()

	ct, err := r.pool.DB.Exec(ctx, `DELETE FROM device_login_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("sweep device login challenges: %w", err)
	}
	return ct.RowsAffected(), nil
}
