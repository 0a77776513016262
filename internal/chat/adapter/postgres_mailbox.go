package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.MailboxRepo = (*MailboxRepo)(nil)

// MailboxRepo persists mailboxes and mailbox_messages.
type MailboxRepo struct {
	pool *pgdb.Pool
}

// NewMailboxRepo creates a MailboxRepo.
func NewMailboxRepo(pool *pgdb.Pool) *MailboxRepo { return &MailboxRepo{pool: pool} }

func (r *MailboxRepo) Issue(ctx context.Context, m chatdomain.Mailbox) error {
	ctx, span := tracer.Start(ctx, "pg.mailbox.issue")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO mailboxes (token_hash, owner_device_id, active, created_at) VALUES ($1,$2,$3,$4)`,
		m.TokenHash, m.OwnerDeviceID.String(), m.Active, m.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("issue mailbox: %w", err)
	}
	return nil
}

func (r *MailboxRepo) FindActiveByHash(ctx context.Context, tokenHash string) (chatdomain.Mailbox, error) {
	ctx, span := tracer.Start(ctx, "pg.mailbox.find_active")
	defer span.End()

	var mb chatdomain.Mailbox
	var ownerDeviceID string
	mb.TokenHash = tokenHash
	err := r.pool.DB.QueryRow(ctx,
		`SELECT owner_device_id, active, created_at, rotated_at FROM mailboxes WHERE token_hash = $1`, tokenHash,
	).Scan(&ownerDeviceID, &mb.Active, &mb.CreatedAt, &mb.RotatedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.Mailbox{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Mailbox{}, fmt.Errorf("find mailbox: %w", err)
	}
	mb.OwnerDeviceID = kerneldomain.MustDeviceID(ownerDeviceID)
	if !mb.Active {
		return chatdomain.Mailbox{}, fmt.Errorf("mailbox inactive: %w", kerneldomain.ErrMailboxInactive)
	}
	return mb, nil
}

func (r *MailboxRepo) Write(ctx context.Context, msg chatdomain.MailboxMessage) error {
	ctx, span := tracer.Start(ctx, "pg.mailbox.write")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO mailbox_messages (id, token_hash, envelope_b64, sender_hint, created_at, expire_at)
		 VALUES ($1,$2,$3,NULLIF($4,''),$5,$6)`,
		msg.ID.String(), msg.TokenHash, msg.EnvelopeB64, msg.SenderHint, msg.CreatedAt, msg.ExpireAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write mailbox message: %w", err)
	}
	return nil
}

func (r *MailboxRepo) Poll(ctx context.Context, tokenHash string, limit int, now time.Time) ([]chatdomain.MailboxMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.mailbox.poll")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT id, envelope_b64, sender_hint, created_at, expire_at
		 FROM mailbox_messages
		 WHERE token_hash = $1 AND consumed_at IS NULL AND (expire_at IS NULL OR expire_at > $2)
		 ORDER BY created_at ASC LIMIT $3`,
		tokenHash, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query mailbox messages: %w", err)
	}

	var out []chatdomain.MailboxMessage
	var ids []string
	for rows.Next() {
		var id string
		var senderHint *string
		msg := chatdomain.MailboxMessage{TokenHash: tokenHash}
		if err := rows.Scan(&id, &msg.EnvelopeB64, &senderHint, &msg.CreatedAt, &msg.ExpireAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan mailbox message row: %w", err)
		}
		msg.ID = kerneldomain.MustMessageID(id)
		if senderHint != nil {
			msg.SenderHint = *senderHint
		}
		ids = append(ids, id)
		out = append(out, msg)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mailbox message rows: %w", err)
	}

	if len(ids) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE mailbox_messages SET consumed_at = $1 WHERE id = ANY($2)`, now, ids,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("mark mailbox messages consumed: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (r *MailboxRepo) Rotate(ctx context.Context, oldTokenHash string, fresh chatdomain.Mailbox, now time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.mailbox.rotate")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ct, err := tx.Exec(ctx,
		`UPDATE mailboxes SET active = false, rotated_at = $1 WHERE token_hash = $2 AND active = true`, now, oldTokenHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deactivate old mailbox: %w", err)
	}
	// The active guard makes concurrent rotates on the same token race on
	// who deactivates the row; the loser's zero-row update is a conflict,
	// never a second fork of the mailbox.
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mailbox already rotated: %w", kerneldomain.ErrConflict)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO mailboxes (token_hash, owner_device_id, active, created_at) VALUES ($1,$2,$3,$4)`,
		fresh.TokenHash, fresh.OwnerDeviceID.String(), fresh.Active, fresh.CreatedAt,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert rotated mailbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired envelopes, consumed envelopes past
// messageRetention, and inactive mailboxes past mailboxRetention.
func (r *MailboxRepo) PurgeExpired(ctx context.Context, now time.Time, messageRetention, mailboxRetention time.Duration) (int64, int64, error) {
	ctx, span := tracer.Start(ctx, "pg.mailbox.purge_expired")
	defer span.End()

	msgCutoff := now.Add(-messageRetention)
	tagMessages, err := r.pool.DB.Exec(ctx,
		`DELETE FROM mailbox_messages
		 WHERE (expire_at IS NOT NULL AND expire_at <= $1)
		    OR (consumed_at IS NOT NULL AND consumed_at <= $2)`,
		now, msgCutoff,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, fmt.Errorf("purge mailbox messages: %w", err)
	}

	mbCutoff := now.Add(-mailboxRetention)
	tagMailboxes, err := r.pool.DB.Exec(ctx,
		`DELETE FROM mailboxes WHERE active = false AND rotated_at IS NOT NULL AND rotated_at <= $1`, mbCutoff,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, 0, fmt.Errorf("purge inactive mailboxes: %w", err)
	}

	return tagMessages.RowsAffected(), tagMailboxes.RowsAffected(), nil
}
