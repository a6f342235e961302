package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// FeedRepo persists feeds and their participant rows.
type FeedRepo struct {
	t *Transactor
}

// NewFeedRepo constructs a FeedRepo over t.
func NewFeedRepo(t *Transactor) *FeedRepo { return &FeedRepo{t: t} }

// FeedsForAddress returns every feedId the address currently participates
// in (an open-ended membership row, i.e. left_at_block IS NULL), satisfying
// events.FeedMembershipSource.
func (r *FeedRepo) FeedsForAddress(ctx context.Context, address domain.Address) ([]domain.FeedId, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT DISTINCT fp.feed_id FROM feed_participants fp
		JOIN feeds f ON f.feed_id = fp.feed_id
		WHERE fp.address = $1 AND fp.left_at_block IS NULL AND f.deleted_at_block IS NULL`, string(address))
	if err != nil {
		return nil, fmt.Errorf("querying feeds for address: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedId
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning feed id: %w", err)
		}
		var id domain.FeedId
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetFeed fetches one feed's row, without its participants.
func (r *FeedRepo) GetFeed(ctx context.Context, feedId domain.FeedId) (domain.Feed, error) {
	row := r.t.DBTX().QueryRow(ctx, `
		SELECT feed_id, type, title, description, block_index, deleted_at_block
		FROM feeds WHERE feed_id = $1`, feedId[:])

	var f domain.Feed
	var raw []byte
	var feedType string
	var deletedAtBlock *int64
	if err := row.Scan(&raw, &feedType, &f.Title, &f.Description, &f.BlockIndex, &deletedAtBlock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Feed{}, ErrNotFound
		}
		return domain.Feed{}, fmt.Errorf("querying feed: %w", err)
	}
	copy(f.FeedId[:], raw)
	f.Type = domain.FeedType(feedType)
	if deletedAtBlock != nil {
		b := domain.BlockIndex(*deletedAtBlock)
		f.DeletedAtBlock = &b
	}
	return f, nil
}

// GetParticipants returns the full participant history (including departed
// members) for a feed, ordered by joined_at_block.
func (r *FeedRepo) GetParticipants(ctx context.Context, feedId domain.FeedId) ([]domain.FeedParticipant, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT address, role, joined_at_block, left_at_block, last_leave_block, encrypted_feed_key
		FROM feed_participants WHERE feed_id = $1 ORDER BY joined_at_block ASC`, feedId[:])
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedParticipant
	for rows.Next() {
		var p domain.FeedParticipant
		var addr, role string
		if err := rows.Scan(&addr, &role, &p.JoinedAtBlock, &p.LeftAtBlock, &p.LastLeaveBlock, &p.EncryptedFeedKey); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p.FeedId = feedId
		p.Address = domain.Address(addr)
		p.Role = domain.ParticipantRole(role)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActiveMembers returns the addresses currently active in feedId (no
// left_at_block, not banned).
func (r *FeedRepo) ActiveMembers(ctx context.Context, feedId domain.FeedId) ([]domain.Address, error) {
	rows, err := r.t.DBTX().Query(ctx, `
		SELECT fp.address FROM feed_participants fp
		JOIN feeds f ON f.feed_id = fp.feed_id
		WHERE fp.feed_id = $1 AND fp.left_at_block IS NULL AND fp.role != $2 AND f.deleted_at_block IS NULL`,
		feedId[:], string(domain.RoleBanned))
	if err != nil {
		return nil, fmt.Errorf("querying active members: %w", err)
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scanning active member: %w", err)
		}
		out = append(out, domain.Address(addr))
	}
	return out, rows.Err()
}

// CreateFeed inserts a new feed row.
func (r *FeedRepo) CreateFeed(ctx context.Context, f domain.Feed, createdAtBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO feeds (feed_id, type, title, description, block_index, created_at_block)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.FeedId[:], string(f.Type), f.Title, f.Description, int64(f.BlockIndex), int64(createdAtBlock))
	if err != nil {
		return fmt.Errorf("creating feed: %w", err)
	}
	return nil
}

// UpdateTitle rewrites a feed's title and bumps its block-index watermark.
func (r *FeedRepo) UpdateTitle(ctx context.Context, feedId domain.FeedId, title string, atBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feeds SET title = $1, block_index = $2 WHERE feed_id = $3`,
		title, int64(atBlock), feedId[:])
	if err != nil {
		return fmt.Errorf("updating feed title: %w", err)
	}
	return nil
}

// UpdateDescription rewrites a feed's description and bumps its block-index
// watermark, mirroring UpdateTitle.
func (r *FeedRepo) UpdateDescription(ctx context.Context, feedId domain.FeedId, description string, atBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feeds SET description = $1, block_index = $2 WHERE feed_id = $3`,
		description, int64(atBlock), feedId[:])
	if err != nil {
		return fmt.Errorf("updating feed description: %w", err)
	}
	return nil
}

// SoftDelete marks a feed deleted as of atBlock without destroying its row
// or message history — deleted feeds are excluded from FeedsForAddress and
// ActiveMembers but remain readable by feedId for anyone who already has it
// cached.
func (r *FeedRepo) SoftDelete(ctx context.Context, feedId domain.FeedId, atBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feeds SET deleted_at_block = $1 WHERE feed_id = $2 AND deleted_at_block IS NULL`,
		int64(atBlock), feedId[:])
	if err != nil {
		return fmt.Errorf("soft-deleting feed: %w", err)
	}
	return nil
}

// BumpBlockIndex advances a feed's block-index watermark, used by the
// rotation engine to signal a new key generation to syncing clients.
func (r *FeedRepo) BumpBlockIndex(ctx context.Context, feedId domain.FeedId, atBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feeds SET block_index = $1 WHERE feed_id = $2 AND block_index < $1`,
		int64(atBlock), feedId[:])
	if err != nil {
		return fmt.Errorf("bumping feed block index: %w", err)
	}
	return nil
}

// AddParticipant inserts a new membership row for a join or rejoin.
func (r *FeedRepo) AddParticipant(ctx context.Context, p domain.FeedParticipant) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO feed_participants (feed_id, address, role, joined_at_block, left_at_block, last_leave_block, encrypted_feed_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.FeedId[:], string(p.Address), string(p.Role), int64(p.JoinedAtBlock),
		blockPtr(p.LeftAtBlock), blockPtr(p.LastLeaveBlock), p.EncryptedFeedKey)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

// SetLeftAtBlock closes out a member's current participation row on leave or
// ban.
func (r *FeedRepo) SetLeftAtBlock(ctx context.Context, feedId domain.FeedId, address domain.Address, atBlock domain.BlockIndex) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feed_participants SET left_at_block = $1, last_leave_block = $1
		WHERE feed_id = $2 AND address = $3 AND left_at_block IS NULL`,
		int64(atBlock), feedId[:], string(address))
	if err != nil {
		return fmt.Errorf("setting left-at-block: %w", err)
	}
	return nil
}

// SetRole updates an active member's role (e.g. promotion to admin).
func (r *FeedRepo) SetRole(ctx context.Context, feedId domain.FeedId, address domain.Address, role domain.ParticipantRole) error {
	_, err := r.t.DBTX().Exec(ctx, `
		UPDATE feed_participants SET role = $1
		WHERE feed_id = $2 AND address = $3 AND left_at_block IS NULL`,
		string(role), feedId[:], string(address))
	if err != nil {
		return fmt.Errorf("setting participant role: %w", err)
	}
	return nil
}

func blockPtr(b *domain.BlockIndex) interface{} {
	if b == nil {
		return nil
	}
	return int64(*b)
}
