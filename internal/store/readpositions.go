package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// ReadPositionRepo persists per-(user, feed) read watermarks.
type ReadPositionRepo struct {
	t *Transactor
}

// NewReadPositionRepo constructs a ReadPositionRepo over t.
func NewReadPositionRepo(t *Transactor) *ReadPositionRepo { return &ReadPositionRepo{t: t} }

// GetAll returns every read position recorded for address.
func (r *ReadPositionRepo) GetAll(ctx context.Context, address domain.Address) ([]domain.ReadPosition, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT feed_id, last_read_block_index, updated_at
		FROM read_positions WHERE address = $1`, string(address))
	if err != nil {
		return nil, fmt.Errorf("querying read positions: %w", err)
	}
	defer rows.Close()

	var out []domain.ReadPosition
	for rows.Next() {
		var raw []byte
		rp := domain.ReadPosition{Address: address}
		if err := rows.Scan(&raw, &rp.LastReadBlockIndex, &rp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning read position: %w", err)
		}
		copy(rp.FeedId[:], raw)
		out = append(out, rp)
	}
	return out, rows.Err()
}

// SetMax upserts address's read position for feedId with MAX-wins semantics,
// mirroring the cache projection's scripted CAS at the database layer.
func (r *ReadPositionRepo) SetMax(ctx context.Context, address domain.Address, feedId domain.FeedId, blockIndex domain.BlockIndex, now time.Time) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO read_positions (address, feed_id, last_read_block_index, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, feed_id) DO UPDATE SET
			last_read_block_index = GREATEST(read_positions.last_read_block_index, EXCLUDED.last_read_block_index),
			updated_at = CASE WHEN EXCLUDED.last_read_block_index > read_positions.last_read_block_index
				THEN EXCLUDED.updated_at ELSE read_positions.updated_at END`,
		string(address), feedId[:], int64(blockIndex), now)
	if err != nil {
		return fmt.Errorf("upserting read position: %w", err)
	}
	return nil
}
