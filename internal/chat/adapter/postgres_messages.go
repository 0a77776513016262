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

var _ chatdomain.MessageRepo = (*MessageRepo)(nil)

// MessageRepo persists direct and group messages.
type MessageRepo struct {
	pool *pgdb.Pool
}

// NewMessageRepo creates a MessageRepo.
func NewMessageRepo(pool *pgdb.Pool) *MessageRepo { return &MessageRepo{pool: pool} }

func (r *MessageRepo) FindDuplicateDirect(ctx context.Context, senderID, recipientID kerneldomain.DeviceID, nonceB64, boxB64 string) (chatdomain.DirectMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.messages.find_duplicate_direct")
	defer span.End()

	row := r.pool.DB.QueryRow(ctx,
		`SELECT id, protocol_version, sender_pubkey, sender_dh_pub, sealed_sender, sender_hint,
		        key_id, prev_key_id, created_at, delivered_at, read_at, expire_at
		 FROM direct_messages
		 WHERE sender_id = $1 AND recipient_id = $2 AND nonce_b64 = $3 AND box_b64 = $4`,
		senderID.String(), recipientID.String(), nonceB64, boxB64)
	m, err := scanDirectMessage(row, senderID, recipientID, nonceB64, boxB64)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.DirectMessage{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.DirectMessage{}, fmt.Errorf("find duplicate direct message: %w", err)
	}
	return m, nil
}

func scanDirectMessage(row pgdb.Row, senderID, recipientID kerneldomain.DeviceID, nonceB64, boxB64 string) (chatdomain.DirectMessage, error) {
	var id, protocolVersion string
	var senderPubKey, senderDHPub, senderHint *string
	var keyID, prevKeyID *int64
	m := chatdomain.DirectMessage{SenderID: senderID, RecipientID: recipientID, NonceB64: nonceB64, BoxB64: boxB64}
	err := row.Scan(&id, &protocolVersion, &senderPubKey, &senderDHPub, &m.SealedSender, &senderHint,
		&keyID, &prevKeyID, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt, &m.ExpireAt)
	if err != nil {
		return chatdomain.DirectMessage{}, err
	}
	m.ID = kerneldomain.MustMessageID(id)
	m.ProtocolVersion = kerneldomain.ProtocolVersion(protocolVersion)
	if senderPubKey != nil {
		m.SenderPubKeyB64 = *senderPubKey
	}
	if senderDHPub != nil {
		m.SenderDHPubB64 = *senderDHPub
	}
	if senderHint != nil {
		m.SenderHint = *senderHint
	}
	m.KeyID = keyID
	m.PrevKeyID = prevKeyID
	return m, nil
}

func (r *MessageRepo) InsertDirect(ctx context.Context, m chatdomain.DirectMessage) (chatdomain.DirectMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.messages.insert_direct")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO direct_messages (id, sender_id, recipient_id, protocol_version, sender_pubkey,
		   sender_dh_pub, nonce_b64, box_b64, sealed_sender, sender_hint, key_id, prev_key_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,$13)`,
		m.ID.String(), m.SenderID.String(), m.RecipientID.String(), string(m.ProtocolVersion),
		m.SenderPubKeyB64, m.SenderDHPubB64, m.NonceB64, m.BoxB64, m.SealedSender, m.SenderHint,
		m.KeyID, m.PrevKeyID, m.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.DirectMessage{}, fmt.Errorf("insert direct message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) Inbox(ctx context.Context, recipientID kerneldomain.DeviceID, since time.Time, limit int, now time.Time) ([]chatdomain.DirectMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.messages.inbox")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`SELECT id, sender_id, protocol_version, sender_pubkey, sender_dh_pub, sealed_sender,
		        sender_hint, key_id, prev_key_id, created_at, delivered_at, read_at, expire_at
		 FROM direct_messages
		 WHERE recipient_id = $1 AND created_at > $2
		 ORDER BY created_at ASC LIMIT $3`,
		recipientID.String(), since, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query inbox: %w", err)
	}

	var out []chatdomain.DirectMessage
	var toMarkDelivered []string
	for rows.Next() {
		var id, senderID, protocolVersion string
		var senderPubKey, senderDHPub, senderHint *string
		var keyID, prevKeyID *int64
		m := chatdomain.DirectMessage{RecipientID: recipientID}
		if err := rows.Scan(&id, &senderID, &protocolVersion, &senderPubKey, &senderDHPub, &m.SealedSender,
			&senderHint, &keyID, &prevKeyID, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt, &m.ExpireAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inbox row: %w", err)
		}
		m.ID = kerneldomain.MustMessageID(id)
		m.SenderID = kerneldomain.MustDeviceID(senderID)
		m.ProtocolVersion = kerneldomain.ProtocolVersion(protocolVersion)
		if senderPubKey != nil {
			m.SenderPubKeyB64 = *senderPubKey
		}
		if senderDHPub != nil {
			m.SenderDHPubB64 = *senderDHPub
		}
		if senderHint != nil {
			m.SenderHint = *senderHint
		}
		m.KeyID, m.PrevKeyID = keyID, prevKeyID
		if m.DeliveredAt == nil {
			toMarkDelivered = append(toMarkDelivered, id)
		}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbox rows: %w", err)
	}

	if len(toMarkDelivered) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE direct_messages SET delivered_at = $1 WHERE id = ANY($2)`, now, toMarkDelivered,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("mark delivered: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (r *MessageRepo) InsertGroupMessage(ctx context.Context, m chatdomain.GroupMessage) (chatdomain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.messages.insert_group")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO group_messages (id, group_id, sender_id, protocol_version, nonce_b64, box_b64, sender_hint, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8)`,
		m.ID.String(), m.GroupID.String(), m.SenderID.String(), string(m.ProtocolVersion),
		m.NonceB64, m.BoxB64, m.SenderHint, m.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.GroupMessage{}, fmt.Errorf("insert group message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) GroupInbox(ctx context.Context, groupID kerneldomain.GroupID, recipientID kerneldomain.DeviceID, since time.Time, limit int, now time.Time) ([]chatdomain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "pg.messages.group_inbox")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT id, sender_id, protocol_version, nonce_b64, box_b64, sender_hint, created_at
		 FROM group_messages WHERE group_id = $1 AND created_at > $2
		 ORDER BY created_at ASC LIMIT $3`,
		groupID.String(), since, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query group inbox: %w", err)
	}
	defer rows.Close()

	var out []chatdomain.GroupMessage
	for rows.Next() {
		var id, senderID, protocolVersion string
		var senderHint *string
		m := chatdomain.GroupMessage{GroupID: groupID}
		if err := rows.Scan(&id, &senderID, &protocolVersion, &m.NonceB64, &m.BoxB64, &senderHint, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group inbox row: %w", err)
		}
		m.ID = kerneldomain.MustMessageID(id)
		m.SenderID = kerneldomain.MustDeviceID(senderID)
		m.ProtocolVersion = kerneldomain.ProtocolVersion(protocolVersion)
		if senderHint != nil {
			m.SenderHint = *senderHint
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group inbox rows: %w", err)
	}
	return out, nil
}
