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

var _ authdomain.ContactInviteRepo = (*ContactInviteRepo)(nil)

// ContactInviteRepo persists contact_invites and chat_contacts against Postgres.
type ContactInviteRepo struct {
	pool *pgdb.Pool
}

// NewContactInviteRepo creates a ContactInviteRepo.
func NewContactInviteRepo(pool *pgdb.Pool) *ContactInviteRepo {
	return &ContactInviteRepo{pool: pool}
}

// Create inserts a fresh invite row.
func (r *ContactInviteRepo) Create(ctx context.Context, inv authdomain.ContactInvite) error {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.create")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO contact_invites (token_hash, issuer_account_id, issuer_chat_device_id, max_uses, use_count, expires_at)
		 VALUES ($1, $2, $3, $4, 0, $5)`,
		inv.TokenHash, inv.IssuerAccountID.String(), inv.IssuerChatDeviceID, inv.MaxUses, inv.ExpiresAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert contact invite: %w", err)
	}
	return nil
}

// LockByTokenHash reads the row FOR UPDATE.
func (r *ContactInviteRepo) LockByTokenHash(ctx context.Context, tokenHash string) (authdomain.ContactInvite, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.lock")
	defer span.End()

	var inv authdomain.ContactInvite
	var issuerAccountID string
	var revokedAt *time.Time
	err := r.pool.DB.QueryRow(ctx,
		`SELECT token_hash, issuer_account_id, issuer_chat_device_id, max_uses, use_count, expires_at, revoked_at
		 FROM contact_invites WHERE token_hash = $1 FOR UPDATE`, tokenHash,
	).Scan(&inv.TokenHash, &issuerAccountID, &inv.IssuerChatDeviceID, &inv.MaxUses, &inv.UseCount, &inv.ExpiresAt, &revokedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.ContactInvite{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.ContactInvite{}, fmt.Errorf("lock contact invite: %w", err)
	}
	inv.IssuerAccountID = kerneldomain.MustAccountID(issuerAccountID)
	inv.RevokedAt = revokedAt
	return inv, nil
}

// IncrementUse bumps use_count and optionally revokes the invite when exhausted.
func (r *ContactInviteRepo) IncrementUse(ctx context.Context, tokenHash string, now time.Time, revoke bool) error {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.increment_use")
	defer span.End()

	var err error
	if revoke {
		_, err = r.pool.DB.Exec(ctx,
			`UPDATE contact_invites SET use_count = use_count + 1, revoked_at = $1 WHERE token_hash = $2`,
			now, tokenHash)
	} else {
		_, err = r.pool.DB.Exec(ctx,
			`UPDATE contact_invites SET use_count = use_count + 1 WHERE token_hash = $1`, tokenHash)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("increment contact invite use: %w", err)
	}
	return nil
}

// UpsertContactEdge inserts a ChatContact edge, a no-op if it already exists.
func (r *ContactInviteRepo) UpsertContactEdge(ctx context.Context, edge authdomain.ChatContact) error {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.upsert_edge")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO chat_contacts (owner_account_id, peer_chat_device_id)
		 VALUES ($1, $2) ON CONFLICT (owner_account_id, peer_chat_device_id) DO NOTHING`,
		edge.OwnerAccountID.String(), edge.PeerChatDeviceID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert contact edge: %w", err)
	}
	return nil
}

// HasContactEdge checks for an established chat_contacts row.
func (r *ContactInviteRepo) HasContactEdge(ctx context.Context, ownerAccountID kerneldomain.AccountID, peerChatDeviceID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.has_edge")
	defer span.End()

	var exists bool
	err := r.pool.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM chat_contacts WHERE owner_account_id = $1 AND peer_chat_device_id = $2)`,
		ownerAccountID.String(), peerChatDeviceID,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("check contact edge: %w", err)
	}
	return exists, nil
}

// DeleteExpiredBefore purges stale invites.
func (r *ContactInviteRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_invites.delete_expired")
	defer span.End()

	ct, err := r.pool.DB.Exec(ctx, `DELETE FROM contact_invites WHERE expires_at < $1`, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("sweep contact invites: %w", err)
	}
	return ct.RowsAffected(), nil
}
