package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.KeyBundleRepo = (*KeyBundleRepo)(nil)

// KeyBundleRepo persists identity keys, signed prekeys, one-time prekeys,
// and device protocol state.
type KeyBundleRepo struct {
	pool *pgdb.Pool
}

// NewKeyBundleRepo creates a KeyBundleRepo.
func NewKeyBundleRepo(pool *pgdb.Pool) *KeyBundleRepo { return &KeyBundleRepo{pool: pool} }

func (r *KeyBundleRepo) FindIdentityKey(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.IdentityKey, error) {
	ctx, span := tracer.Start(ctx, "pg.keybundle.find_identity")
	defer span.End()

	var k chatdomain.IdentityKey
	k.DeviceID = id
	err := r.pool.DB.QueryRow(ctx,
		`SELECT identity_key_b64, identity_signing_key_b64 FROM identity_keys WHERE device_id = $1`, id.String(),
	).Scan(&k.IdentityKeyB64, &k.IdentitySigningKeyB64)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.IdentityKey{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.IdentityKey{}, fmt.Errorf("find identity key: %w", err)
	}
	return k, nil
}

func (r *KeyBundleRepo) UpsertIdentityKey(ctx context.Context, k chatdomain.IdentityKey) error {
	ctx, span := tracer.Start(ctx, "pg.keybundle.upsert_identity")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO identity_keys (device_id, identity_key_b64, identity_signing_key_b64)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (device_id) DO UPDATE SET identity_key_b64 = EXCLUDED.identity_key_b64,
		   identity_signing_key_b64 = EXCLUDED.identity_signing_key_b64`,
		k.DeviceID.String(), k.IdentityKeyB64, k.IdentitySigningKeyB64,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert identity key: %w", err)
	}
	return nil
}

func (r *KeyBundleRepo) UpsertSignedPrekey(ctx context.Context, p chatdomain.SignedPrekey) error {
	ctx, span := tracer.Start(ctx, "pg.keybundle.upsert_signed_prekey")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO signed_prekeys (device_id, key_id, public_key_b64, signature_b64)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE SET key_id = EXCLUDED.key_id,
		   public_key_b64 = EXCLUDED.public_key_b64, signature_b64 = EXCLUDED.signature_b64`,
		p.DeviceID.String(), p.KeyID, p.PublicKeyB64, p.SignatureB64,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert signed prekey: %w", err)
	}
	return nil
}

func (r *KeyBundleRepo) FindSignedPrekey(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.SignedPrekey, error) {
	ctx, span := tracer.Start(ctx, "pg.keybundle.find_signed_prekey")
	defer span.End()

	var p chatdomain.SignedPrekey
	p.DeviceID = id
	err := r.pool.DB.QueryRow(ctx,
		`SELECT key_id, public_key_b64, signature_b64 FROM signed_prekeys WHERE device_id = $1`, id.String(),
	).Scan(&p.KeyID, &p.PublicKeyB64, &p.SignatureB64)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.SignedPrekey{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.SignedPrekey{}, fmt.Errorf("find signed prekey: %w", err)
	}
	return p, nil
}

func (r *KeyBundleRepo) InsertOneTimePrekeys(ctx context.Context, ps []chatdomain.OneTimePrekey) error {
	ctx, span := tracer.Start(ctx, "pg.keybundle.insert_one_time_prekeys")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range ps {
		_, err = tx.Exec(ctx,
			`INSERT INTO one_time_prekeys (device_id, key_id, key_b64, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (device_id, key_id) DO NOTHING`,
			p.DeviceID.String(), p.KeyID, p.KeyB64, p.CreatedAt,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("insert one-time prekey: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *KeyBundleRepo) FindProtocolState(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.DeviceProtocolState, error) {
	ctx, span := tracer.Start(ctx, "pg.keybundle.find_protocol_state")
	defer span.End()

	var s chatdomain.DeviceProtocolState
	s.DeviceID = id
	var floor string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT protocol_floor, supports_v2, v2_only FROM device_protocol_state WHERE device_id = $1`, id.String(),
	).Scan(&floor, &s.SupportsV2, &s.V2Only)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.DeviceProtocolState{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.DeviceProtocolState{}, fmt.Errorf("find protocol state: %w", err)
	}
	s.ProtocolFloor = kerneldomain.ProtocolVersion(floor)
	return s, nil
}

func (r *KeyBundleRepo) UpsertProtocolState(ctx context.Context, s chatdomain.DeviceProtocolState) error {
	ctx, span := tracer.Start(ctx, "pg.keybundle.upsert_protocol_state")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO device_protocol_state (device_id, protocol_floor, supports_v2, v2_only)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE SET protocol_floor = EXCLUDED.protocol_floor,
		   supports_v2 = EXCLUDED.supports_v2, v2_only = EXCLUDED.v2_only`,
		s.DeviceID.String(), string(s.ProtocolFloor), s.SupportsV2, s.V2Only,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert protocol state: %w", err)
	}
	return nil
}

// FetchAndConsumeBundle implements the single-transaction
// read+strict-v2-gate+SKIP LOCKED consume. The one-time prekey is exactly
// once: concurrent fetchers race on FOR UPDATE SKIP LOCKED and never observe
// the same row.
func (r *KeyBundleRepo) FetchAndConsumeBundle(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.KeyBundle, error) {
	ctx, span := tracer.Start(ctx, "pg.keybundle.fetch_and_consume")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return chatdomain.KeyBundle{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var identityKeyB64 string
	var spk chatdomain.SignedPrekey
	spk.DeviceID = id
	var floor string
	var supportsV2, v2Only bool

	err = tx.QueryRow(ctx,
		`SELECT ik.identity_key_b64, sp.key_id, sp.public_key_b64, sp.signature_b64,
		        ps.protocol_floor, ps.supports_v2, ps.v2_only
		 FROM identity_keys ik
		 JOIN signed_prekeys sp ON sp.device_id = ik.device_id
		 JOIN device_protocol_state ps ON ps.device_id = ik.device_id
		 WHERE ik.device_id = $1`, id.String(),
	).Scan(&identityKeyB64, &spk.KeyID, &spk.PublicKeyB64, &spk.SignatureB64, &floor, &supportsV2, &v2Only)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.KeyBundle{}, fmt.Errorf("key bundle material incomplete: %w", kerneldomain.ErrKeyBundleUnavailable)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.KeyBundle{}, fmt.Errorf("fetch key bundle material: %w", err)
	}

	state := chatdomain.DeviceProtocolState{
		DeviceID:      id,
		ProtocolFloor: kerneldomain.ProtocolVersion(floor),
		SupportsV2:    supportsV2,
		V2Only:        v2Only,
	}
	if !state.StrictV2() {
		// Opaque 404: the caller never learns which policy gate failed.
		return chatdomain.KeyBundle{}, fmt.Errorf("bundle does not satisfy strict v2 policy: %w", kerneldomain.ErrKeyBundleUnavailable)
	}

	bundle := chatdomain.KeyBundle{
		DeviceID:       id,
		IdentityKeyB64: identityKeyB64,
		SignedPrekey:   spk,
	}

	var otpKeyID int64
	var otpKeyB64 string
	err = tx.QueryRow(ctx,
		`UPDATE one_time_prekeys SET consumed_at = now()
		 FROM (
		   SELECT device_id, key_id FROM one_time_prekeys
		   WHERE device_id = $1 AND consumed_at IS NULL
		   ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
		 ) picked
		 WHERE one_time_prekeys.device_id = picked.device_id AND one_time_prekeys.key_id = picked.key_id
		 RETURNING one_time_prekeys.key_id, one_time_prekeys.key_b64`,
		id.String(),
	).Scan(&otpKeyID, &otpKeyB64)
	if err != nil {
		if !pgdb.IsNoRows(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return chatdomain.KeyBundle{}, fmt.Errorf("consume one-time prekey: %w", err)
		}
		// No one-time prekey available: the bundle is still valid without one.
	} else {
		bundle.OneTimePrekeyID = &otpKeyID
		bundle.OneTimePrekeyB64 = otpKeyB64
	}

	if err := tx.Commit(ctx); err != nil {
		return chatdomain.KeyBundle{}, fmt.Errorf("commit: %w", err)
	}
	return bundle, nil
}
