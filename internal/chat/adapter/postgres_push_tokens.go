package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ chatdomain.PushTokenRepo = (*PushTokenRepo)(nil)

// PushTokenRepo persists mobile push endpoint registrations.
type PushTokenRepo struct {
	pool *pgdb.Pool
}

// NewPushTokenRepo creates a PushTokenRepo.
func NewPushTokenRepo(pool *pgdb.Pool) *PushTokenRepo { return &PushTokenRepo{pool: pool} }

func (r *PushTokenRepo) Upsert(ctx context.Context, t chatdomain.PushToken) error {
	ctx, span := tracer.Start(ctx, "pg.push_tokens.upsert")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO push_tokens (token, device_id, platform) VALUES ($1,$2,$3)
		 ON CONFLICT (token) DO UPDATE SET device_id = EXCLUDED.device_id, platform = EXCLUDED.platform`,
		t.Token, t.DeviceID.String(), string(t.Platform),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

func (r *PushTokenRepo) ListForDevices(ctx context.Context, deviceIDs []kerneldomain.DeviceID) ([]chatdomain.PushToken, error) {
	ctx, span := tracer.Start(ctx, "pg.push_tokens.list_for_devices")
	defer span.End()

	if len(deviceIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		ids[i] = id.String()
	}
	rows, err := r.pool.DB.Query(ctx,
		`SELECT token, device_id, platform FROM push_tokens WHERE device_id = ANY($1)`, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list push tokens: %w", err)
	}
	defer rows.Close()

	var out []chatdomain.PushToken
	for rows.Next() {
		var token, deviceID, platform string
		if err := rows.Scan(&token, &deviceID, &platform); err != nil {
			return nil, fmt.Errorf("scan push token row: %w", err)
		}
		out = append(out, chatdomain.PushToken{
			Token:    token,
			DeviceID: kerneldomain.MustDeviceID(deviceID),
			Platform: chatdomain.PushPlatform(platform),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push token rows: %w", err)
	}
	return out, nil
}
