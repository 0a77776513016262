package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.ContactRuleRepo = (*ContactRuleRepo)(nil)

// ContactRuleRepo persists per-device contact rules and group prefs.
type ContactRuleRepo struct {
	pool *pgdb.Pool
}

// NewContactRuleRepo creates a ContactRuleRepo.
func NewContactRuleRepo(pool *pgdb.Pool) *ContactRuleRepo { return &ContactRuleRepo{pool: pool} }

func (r *ContactRuleRepo) Find(ctx context.Context, deviceID, peerID kerneldomain.DeviceID) (chatdomain.ContactRule, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_rules.find")
	defer span.End()

	rule := chatdomain.ContactRule{DeviceID: deviceID, PeerID: peerID}
	err := r.pool.DB.QueryRow(ctx,
		`SELECT blocked, hidden, muted, starred, pinned FROM contact_rules WHERE device_id = $1 AND peer_id = $2`,
		deviceID.String(), peerID.String(),
	).Scan(&rule.Blocked, &rule.Hidden, &rule.Muted, &rule.Starred, &rule.Pinned)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.ContactRule{DeviceID: deviceID, PeerID: peerID}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.ContactRule{}, fmt.Errorf("find contact rule: %w", err)
	}
	return rule, nil
}

func (r *ContactRuleRepo) BlockedOrHiddenPeers(ctx context.Context, deviceID kerneldomain.DeviceID) (map[kerneldomain.DeviceID]bool, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_rules.blocked_or_hidden")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT peer_id FROM contact_rules WHERE device_id = $1 AND (blocked OR hidden)`, deviceID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list blocked or hidden peers: %w", err)
	}
	defer rows.Close()

	out := make(map[kerneldomain.DeviceID]bool)
	for rows.Next() {
		var peerID string
		if err := rows.Scan(&peerID); err != nil {
			return nil, fmt.Errorf("scan peer row: %w", err)
		}
		out[kerneldomain.MustDeviceID(peerID)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer rows: %w", err)
	}
	return out, nil
}

func (r *ContactRuleRepo) MutedSenders(ctx context.Context, deviceID kerneldomain.DeviceID) (map[kerneldomain.DeviceID]bool, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_rules.muted_senders")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT peer_id FROM contact_rules WHERE device_id = $1 AND muted`, deviceID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list muted senders: %w", err)
	}
	defer rows.Close()

	out := make(map[kerneldomain.DeviceID]bool)
	for rows.Next() {
		var peerID string
		if err := rows.Scan(&peerID); err != nil {
			return nil, fmt.Errorf("scan muted peer row: %w", err)
		}
		out[kerneldomain.MustDeviceID(peerID)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate muted peer rows: %w", err)
	}
	return out, nil
}

func (r *ContactRuleRepo) Upsert(ctx context.Context, rule chatdomain.ContactRule) error {
	ctx, span := tracer.Start(ctx, "pg.contact_rules.upsert")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO contact_rules (device_id, peer_id, blocked, hidden, muted, starred, pinned)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (device_id, peer_id) DO UPDATE SET blocked=EXCLUDED.blocked, hidden=EXCLUDED.hidden,
		   muted=EXCLUDED.muted, starred=EXCLUDED.starred, pinned=EXCLUDED.pinned`,
		rule.DeviceID.String(), rule.PeerID.String(), rule.Blocked, rule.Hidden, rule.Muted, rule.Starred, rule.Pinned,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert contact rule: %w", err)
	}
	return nil
}

func (r *ContactRuleRepo) FindGroupPref(ctx context.Context, deviceID kerneldomain.DeviceID, groupID kerneldomain.GroupID) (chatdomain.GroupPref, error) {
	ctx, span := tracer.Start(ctx, "pg.contact_rules.find_group_pref")
	defer span.End()

	pref := chatdomain.GroupPref{DeviceID: deviceID, GroupID: groupID}
	err := r.pool.DB.QueryRow(ctx,
		`SELECT muted, pinned FROM group_prefs WHERE device_id = $1 AND group_id = $2`,
		deviceID.String(), groupID.String(),
	).Scan(&pref.Muted, &pref.Pinned)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.GroupPref{DeviceID: deviceID, GroupID: groupID}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.GroupPref{}, fmt.Errorf("find group pref: %w", err)
	}
	return pref, nil
}
