package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// DeviceTokenRepo persists push-notification device registrations.
type DeviceTokenRepo struct {
	t *Transactor
}

// NewDeviceTokenRepo constructs a DeviceTokenRepo over t.
func NewDeviceTokenRepo(t *Transactor) *DeviceTokenRepo { return &DeviceTokenRepo{t: t} }

// GetAll returns every active and inactive token registered to address.
func (r *DeviceTokenRepo) GetAll(ctx context.Context, address domain.Address) ([]domain.DeviceToken, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT token_id, platform, token, device_name, created_at, last_used_at, is_active
		FROM device_tokens WHERE address = $1`, string(address))
	if err != nil {
		return nil, fmt.Errorf("querying device tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.DeviceToken
	for rows.Next() {
		dt := domain.DeviceToken{Address: address}
		if err := rows.Scan(&dt.TokenId, &dt.Platform, &dt.Token, &dt.DeviceName, &dt.CreatedAt, &dt.LastUsedAt, &dt.IsActive); err != nil {
			return nil, fmt.Errorf("scanning device token: %w", err)
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// Upsert registers or refreshes a device token.
func (r *DeviceTokenRepo) Upsert(ctx context.Context, dt domain.DeviceToken) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO device_tokens (token_id, address, platform, token, device_name, created_at, last_used_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_id) DO UPDATE SET
			address = EXCLUDED.address,
			platform = EXCLUDED.platform,
			token = EXCLUDED.token,
			device_name = EXCLUDED.device_name,
			last_used_at = EXCLUDED.last_used_at,
			is_active = EXCLUDED.is_active`,
		dt.TokenId, string(dt.Address), dt.Platform, dt.Token, dt.DeviceName, dt.CreatedAt, dt.LastUsedAt, dt.IsActive)
	if err != nil {
		return fmt.Errorf("upserting device token: %w", err)
	}
	return nil
}

// Deactivate marks a token inactive without deleting its history.
func (r *DeviceTokenRepo) Deactivate(ctx context.Context, tokenId string, at time.Time) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE device_tokens SET is_active = FALSE, last_used_at = $1 WHERE token_id = $2`, at, tokenId)
	if err != nil {
		return fmt.Errorf("deactivating device token: %w", err)
	}
	return nil
}
