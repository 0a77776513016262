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

var _ authdomain.BiometricTokenRepo = (*BiometricTokenRepo)(nil)

// BiometricTokenRepo persists biometric enrollments against Postgres.
type BiometricTokenRepo struct {
	pool *pgdb.Pool
}

// NewBiometricTokenRepo creates a BiometricTokenRepo.
func NewBiometricTokenRepo(pool *pgdb.Pool) *BiometricTokenRepo {
	return &BiometricTokenRepo{pool: pool}
}

// Upsert replaces any prior enrollment for the (account_id, device_id)
// pair, resetting expiry and revocation.
func (r *BiometricTokenRepo) Upsert(ctx context.Context, t authdomain.BiometricToken) error {
	ctx, span := tracer.Start(ctx, "pg.biometric_tokens.upsert")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO biometric_tokens (token_hash, account_id, device_id, created_at, expires_at)
		 VALUES ($1, $2, $3, NOW(), $4)
		 ON CONFLICT (account_id, device_id) DO UPDATE SET
		   token_hash = EXCLUDED.token_hash,
		   created_at = NOW(),
		   expires_at = EXCLUDED.expires_at,
		   revoked_at = NULL`,
		t.TokenHash, t.AccountID.String(), t.DeviceID, t.ExpiresAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert biometric token: %w", err)
	}
	return nil
}

// FindByHashAndDevice looks up an enrollment by its device-bound hash.
func (r *BiometricTokenRepo) FindByHashAndDevice(ctx context.Context, tokenHash, deviceID string) (authdomain.BiometricToken, error) {
	ctx, span := tracer.Start(ctx, "pg.biometric_tokens.find")
	defer span.End()

	var t authdomain.BiometricToken
	var accountID string
	var revokedAt *time.Time
	err := r.pool.DB.QueryRow(ctx,
		`SELECT token_hash, account_id, device_id, expires_at, revoked_at
		 FROM biometric_tokens WHERE token_hash = $1 AND device_id = $2`,
		tokenHash, deviceID,
	).Scan(&t.TokenHash, &accountID, &t.DeviceID, &t.ExpiresAt, &revokedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.BiometricToken{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.BiometricToken{}, fmt.Errorf("find biometric token: %w", err)
	}
	t.RevokedAt = revokedAt
	t.AccountID, err = kerneldomain.NewAccountID(accountID)
	if err != nil {
		return authdomain.BiometricToken{}, fmt.Errorf("parse account id: %w", err)
	}
	return t, nil
}

// Rotate swaps oldTokenHash for newTokenHash while the enrollment is still
// alive. The WHERE clause makes a lost race a zero-row update, not an error.
func (r *BiometricTokenRepo) Rotate(ctx context.Context, accountID kerneldomain.AccountID, deviceID, oldTokenHash, newTokenHash string, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "pg.biometric_tokens.rotate")
	defer span.End()

	tag, err := r.pool.DB.Exec(ctx,
		`UPDATE biometric_tokens
		 SET token_hash = $1, last_used_at = $2
		 WHERE account_id = $3 AND device_id = $4 AND token_hash = $5
		   AND revoked_at IS NULL AND expires_at > $2`,
		newTokenHash, now, accountID.String(), deviceID, oldTokenHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("rotate biometric token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpiredBefore purges enrollments whose expiry is past the cutoff.
func (r *BiometricTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.biometric_tokens.delete_expired")
	defer span.End()

	tag, err := r.pool.DB.Exec(ctx,
		`DELETE FROM biometric_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("delete expired biometric tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
