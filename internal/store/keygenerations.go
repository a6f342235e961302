package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// KeyGenerationRepo persists the group key-rotation history.
type KeyGenerationRepo struct {
	t *Transactor
}

// NewKeyGenerationRepo constructs a KeyGenerationRepo over t.
func NewKeyGenerationRepo(t *Transactor) *KeyGenerationRepo { return &KeyGenerationRepo{t: t} }

// LatestGeneration returns the highest generation number recorded for
// feedId, or -1 if none exists yet.
func (r *KeyGenerationRepo) LatestGeneration(ctx context.Context, feedId domain.FeedId) (int, error) {
	row := r.t.DBTX().QueryRow(ctx, `
		SELECT COALESCE(MAX(generation), -1) FROM key_generations WHERE feed_id = $1`, feedId[:])
	var latest int
	if err := row.Scan(&latest); err != nil {
		return 0, fmt.Errorf("querying latest generation: %w", err)
	}
	return latest, nil
}

// GetAll returns every key generation recorded for feedId, ascending.
func (r *KeyGenerationRepo) GetAll(ctx context.Context, feedId domain.FeedId) ([]domain.KeyGeneration, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT generation, valid_from_block, valid_to_block, trigger, encrypted_keys
		FROM key_generations WHERE feed_id = $1 ORDER BY generation ASC`, feedId[:])
	if err != nil {
		return nil, fmt.Errorf("querying key generations: %w", err)
	}
	defer rows.Close()

	var out []domain.KeyGeneration
	for rows.Next() {
		var g domain.KeyGeneration
		var trigger string
		var raw []byte
		if err := rows.Scan(&g.Generation, &g.ValidFromBlock, &g.ValidToBlock, &trigger, &raw); err != nil {
			return nil, fmt.Errorf("scanning key generation: %w", err)
		}
		g.FeedId = feedId
		g.Trigger = domain.RotationTrigger(trigger)
		if err := json.Unmarshal(raw, &g.EncryptedKeys); err != nil {
			return nil, fmt.Errorf("unmarshalling encrypted keys: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Create inserts a new, immutable key generation, and closes out the
// previous generation's valid_to_block in the same statement group.
func (r *KeyGenerationRepo) Create(ctx context.Context, g domain.KeyGeneration) error {
	encoded, err := json.Marshal(g.EncryptedKeys)
	if err != nil {
		return fmt.Errorf("marshalling encrypted keys: %w", err)
	}

	if g.Generation > 0 {
		_, err := r.t.DBTX().Exec(ctx, `
			UPDATE key_generations SET valid_to_block = $1
			WHERE feed_id = $2 AND generation = $3`,
			int64(g.ValidFromBlock), g.FeedId[:], int64(g.Generation)-1)
		if err != nil {
			return fmt.Errorf("closing previous key generation: %w", err)
		}
	}

	_, err = r.t.DBTX().Exec(ctx, `
		INSERT INTO key_generations (feed_id, generation, valid_from_block, valid_to_block, trigger, encrypted_keys)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.FeedId[:], int64(g.Generation), int64(g.ValidFromBlock), blockPtr(g.ValidToBlock), string(g.Trigger), encoded)
	if err != nil {
		return fmt.Errorf("inserting key generation: %w", err)
	}
	return nil
}
