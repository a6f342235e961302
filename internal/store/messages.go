package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// MessageRepo persists finalized feed messages.
type MessageRepo struct {
	t *Transactor
}

// NewMessageRepo constructs a MessageRepo over t.
func NewMessageRepo(t *Transactor) *MessageRepo { return &MessageRepo{t: t} }

// Append inserts one finalized, immutable message.
func (r *MessageRepo) Append(ctx context.Context, m domain.FeedMessage) error {
	_, err := r.t.DBTX().Exec(ctx, `
		INSERT INTO feed_messages (message_id, feed_id, content, issuer_address, block_index, ts, key_generation, reply_to_id, author_commitment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.MessageId[:], m.FeedId[:], m.Content, string(m.IssuerAddress), int64(m.BlockIndex), m.Timestamp,
		generationPtr(m.KeyGeneration), messageIDPtr(m.ReplyToId), m.AuthorCommitment)
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// GetByID fetches one message by id.
func (r *MessageRepo) GetByID(ctx context.Context, messageId domain.MessageId) (domain.FeedMessage, error) {
	row := r.t.DBTX().QueryRow(ctx, `
		SELECT message_id, feed_id, content, issuer_address, block_index, ts, key_generation, reply_to_id, author_commitment
		FROM feed_messages WHERE message_id = $1`, messageId[:])
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeedMessage{}, ErrNotFound
	}
	return m, err
}

// Tail returns messages for feedId with block_index > sinceBlock (or all,
// if sinceBlock is nil), newest first, capped at limit.
func (r *MessageRepo) Tail(ctx context.Context, feedId domain.FeedId, sinceBlock *domain.BlockIndex, limit int) ([]domain.FeedMessage, error) {
	var rows pgx.Rows
	var err error
	if sinceBlock != nil {
		rows, err = r.t.DBTX().Query(ctx, `
			SELECT message_id, feed_id, content, issuer_address, block_index, ts, key_generation, reply_to_id, author_commitment
			FROM feed_messages WHERE feed_id = $1 AND block_index > $2
			ORDER BY block_index DESC LIMIT $3`, feedId[:], int64(*sinceBlock), limit)
	} else {
		rows, err = r.t.DBTX().Query(ctx, `
			SELECT message_id, feed_id, content, issuer_address, block_index, ts, key_generation, reply_to_id, author_commitment
			FROM feed_messages WHERE feed_id = $1
			ORDER BY block_index DESC LIMIT $2`, feedId[:], limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying message tail: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scannable) (domain.FeedMessage, error) {
	var m domain.FeedMessage
	var messageRaw, feedRaw []byte
	var issuer string
	var keyGen *domain.Generation
	var replyRaw []byte

	if err := row.Scan(&messageRaw, &feedRaw, &m.Content, &issuer, &m.BlockIndex, &m.Timestamp, &keyGen, &replyRaw, &m.AuthorCommitment); err != nil {
		return domain.FeedMessage{}, fmt.Errorf("scanning message row: %w", err)
	}
	copy(m.MessageId[:], messageRaw)
	copy(m.FeedId[:], feedRaw)
	m.IssuerAddress = domain.Address(issuer)
	m.KeyGeneration = keyGen
	if len(replyRaw) == 16 {
		var id domain.MessageId
		copy(id[:], replyRaw)
		m.ReplyToId = &id
	}
	return m, nil
}

func generationPtr(g *domain.Generation) interface{} {
	if g == nil {
		return nil
	}
	return int32(*g)
}

func messageIDPtr(id *domain.MessageId) interface{} {
	if id == nil {
		return nil
	}
	return id[:]
}
