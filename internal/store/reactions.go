package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// ReactionRepo persists the homomorphic reaction tally per message.
type ReactionRepo struct {
	t *Transactor
}

// NewReactionRepo constructs a ReactionRepo over t.
func NewReactionRepo(t *Transactor) *ReactionRepo { return &ReactionRepo{t: t} }

// GetByMessageID fetches one message's current tally.
func (r *ReactionRepo) GetByMessageID(ctx context.Context, messageId domain.MessageId) (domain.ReactionTally, error) {
	row := r.t.DBTX().QueryRow(ctx, `
		SELECT version, total_count, tally_c1, tally_c2 FROM reaction_tallies WHERE message_id = $1`, messageId[:])

	var t domain.ReactionTally
	t.MessageId = messageId
	var c1, c2 [][]byte
	if err := row.Scan(&t.Version, &t.TotalCount, &c1, &c2); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReactionTally{}, ErrNotFound
		}
		return domain.ReactionTally{}, fmt.Errorf("querying reaction tally: %w", err)
	}
	copy(t.TallyC1[:], c1)
	copy(t.TallyC2[:], c2)
	return t, nil
}

// Upsert writes the homomorphically-updated tally, advancing Version.
func (r *ReactionRepo) Upsert(ctx context.Context, tally domain.ReactionTally) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO reaction_tallies (message_id, version, total_count, tally_c1, tally_c2)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET
			version = EXCLUDED.version,
			total_count = EXCLUDED.total_count,
			tally_c1 = EXCLUDED.tally_c1,
			tally_c2 = EXCLUDED.tally_c2
		WHERE reaction_tallies.version < EXCLUDED.version`,
		tally.MessageId[:], int64(tally.Version), int64(tally.TotalCount), tally.TallyC1[:], tally.TallyC2[:])
	if err != nil {
		return fmt.Errorf("upserting reaction tally: %w", err)
	}
	return nil
}
