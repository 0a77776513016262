package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.DeviceRepo = (*DeviceRepo)(nil)

// DeviceRepo persists devices, device_auth, and device_key_events.
type DeviceRepo struct {
	pool *pgdb.Pool
}

// NewDeviceRepo creates a DeviceRepo.
func NewDeviceRepo(pool *pgdb.Pool) *DeviceRepo { return &DeviceRepo{pool: pool} }

// FindDevice looks up a device by id.
func (r *DeviceRepo) FindDevice(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.Device, error) {
	ctx, span := tracer.Start(ctx, "pg.devices.find")
	defer span.End()

	var d chatdomain.Device
	var deviceID, pubKey string
	var name *string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT id, public_key_b64, key_version, name, created_at FROM devices WHERE id = $1`, id.String(),
	).Scan(&deviceID, &pubKey, &d.KeyVersion, &name, &d.CreatedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.Device{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Device{}, fmt.Errorf("find device: %w", err)
	}
	d.ID = kerneldomain.MustDeviceID(deviceID)
	d.PublicKeyB64 = pubKey
	if name != nil {
		d.Name = *name
	}
	return d, nil
}

// FindAuth looks up a device's bootstrap auth-token hash.
func (r *DeviceRepo) FindAuth(ctx context.Context, id kerneldomain.DeviceID) (chatdomain.DeviceAuth, error) {
	ctx, span := tracer.Start(ctx, "pg.devices.find_auth")
	defer span.End()

	var auth chatdomain.DeviceAuth
	auth.DeviceID = id
	err := r.pool.DB.QueryRow(ctx,
		`SELECT token_hash FROM device_auth WHERE device_id = $1`, id.String(),
	).Scan(&auth.TokenHash)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return chatdomain.DeviceAuth{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.DeviceAuth{}, fmt.Errorf("find device auth: %w", err)
	}
	return auth, nil
}

// Register inserts a fresh device+auth row, or upserts the device's
// public_key/key_version and journals a rotation event, all within one
// transaction.
func (r *DeviceRepo) Register(ctx context.Context, d chatdomain.Device, authTokenHash string, rotationEvent *chatdomain.DeviceKeyEvent) (chatdomain.Device, error) {
	ctx, span := tracer.Start(ctx, "pg.devices.register")
	defer span.End()

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return chatdomain.Device{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var name *string
	if d.Name != "" {
		name = &d.Name
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO devices (id, public_key_b64, key_version, name, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET public_key_b64 = EXCLUDED.public_key_b64,
		   key_version = EXCLUDED.key_version, name = COALESCE(EXCLUDED.name, devices.name)`,
		d.ID.String(), d.PublicKeyB64, d.KeyVersion, name, d.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Device{}, fmt.Errorf("upsert device: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO device_auth (device_id, token_hash) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET token_hash = EXCLUDED.token_hash`,
		d.ID.String(), authTokenHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chatdomain.Device{}, fmt.Errorf("upsert device auth: %w", err)
	}

	if rotationEvent != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO device_key_events (device_id, old_fingerprint, new_fingerprint, created_at)
			 VALUES ($1, $2, $3, $4)`,
			rotationEvent.DeviceID.String(), rotationEvent.OldFingerprint, rotationEvent.NewFingerprint, rotationEvent.CreatedAt,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return chatdomain.Device{}, fmt.Errorf("insert device key event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return chatdomain.Device{}, fmt.Errorf("commit: %w", err)
	}
	return d, nil
}
