// Package feedmetadata implements the Feed-Metadata projection: a
// per-address hash of feedId to a denormalized metadata blob (title, type,
// lastBlockIndex, participants, createdAtBlock, currentKeyGeneration).
package feedmetadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const ttl = 24 * time.Hour

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Entry is the cached per-feed metadata blob.
type Entry struct {
	Title                string                   `json:"title"`
	Type                 domain.FeedType          `json:"type"`
	LastBlockIndex       domain.BlockIndex        `json:"lastBlockIndex"`
	Participants         []domain.FeedParticipant `json:"participants"`
	CreatedAtBlock       domain.BlockIndex        `json:"createdAtBlock"`
	CurrentKeyGeneration *domain.Generation       `json:"currentKeyGeneration,omitempty"`
}

// Service is the Feed-Metadata projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Feed-Metadata projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "feed-metadata").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(address domain.Address) string {
	return fmt.Sprintf("%suser:%s:feed_meta", s.prefix, address)
}

// GetAll returns the full feedId->Entry map for address, or (nil, false) on
// miss. Entries missing title/participants (legacy shape) are treated as a
// miss for the whole key, forcing a full re-derivation from the database.
func (s *Service) GetAll(ctx context.Context, address domain.Address) (map[domain.FeedId]Entry, bool) {
	raw, err := s.store.HGetAll(ctx, s.key(address))
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Msg("feed-metadata hgetall failed")
		return nil, false
	}
	if len(raw) == 0 {
		s.counters.Misses.Inc()
		return nil, false
	}

	out := make(map[domain.FeedId]Entry, len(raw))
	for field, value := range raw {
		feedId, err := domain.ParseFeedId(field)
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			s.log.Debug().Str("feedId", field).Msg("skipping malformed feed-metadata entry")
			continue
		}
		if e.Title == "" && e.Participants == nil {
			s.counters.Misses.Inc()
			return nil, false
		}
		out[feedId] = e
	}
	s.counters.Hits.Inc()
	return out, true
}

// SetOne writes a single feed's metadata entry.
func (s *Service) SetOne(ctx context.Context, address domain.Address, feedId domain.FeedId, entry Entry) {
	s.SetMany(ctx, address, map[domain.FeedId]Entry{feedId: entry})
}

// SetMany writes the given feedId->Entry entries in one HMSET, refreshing
// the key's TTL.
func (s *Service) SetMany(ctx context.Context, address domain.Address, entries map[domain.FeedId]Entry) {
	if len(entries) == 0 {
		return
	}
	fields := make(map[string]string, len(entries))
	for feedId, entry := range entries {
		b, err := json.Marshal(entry)
		if err != nil {
			s.counters.WriteErrors.Inc()
			continue
		}
		fields[feedId.String()] = string(b)
	}
	key := s.key(address)
	if err := s.store.HSet(ctx, key, fields); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("feed-metadata hset failed")
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// UpdateLastBlockIndex bumps the lastBlockIndex field of one feed's entry,
// but only if the field already exists — never forge a partial entry.
func (s *Service) UpdateLastBlockIndex(ctx context.Context, address domain.Address, feedId domain.FeedId, blockIndex domain.BlockIndex) {
	key := s.key(address)
	field := feedId.String()
	current, err := s.store.HGet(ctx, key, field)
	if err != nil || current == "" {
		return
	}
	var e Entry
	if err := json.Unmarshal([]byte(current), &e); err != nil {
		return
	}
	e.LastBlockIndex = blockIndex
	b, err := json.Marshal(e)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.HSet(ctx, key, map[string]string{field: string(b)}); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("feed-metadata update-last-block-index failed")
		return
	}
	_ = s.store.Expire(ctx, key, ttl)
	s.counters.Writes.Inc()
}

// UpdateTitle rewrites only the title field of one feed's entry, but only if
// the field already exists — mirrors UpdateLastBlockIndex so a title
// cascade (identity rename, group rename) never clobbers the rest of the
// denormalized blob.
func (s *Service) UpdateTitle(ctx context.Context, address domain.Address, feedId domain.FeedId, title string) {
	key := s.key(address)
	field := feedId.String()
	current, err := s.store.HGet(ctx, key, field)
	if err != nil || current == "" {
		return
	}
	var e Entry
	if err := json.Unmarshal([]byte(current), &e); err != nil {
		return
	}
	e.Title = title
	b, err := json.Marshal(e)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.HSet(ctx, key, map[string]string{field: string(b)}); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("feed-metadata update-title failed")
		return
	}
	_ = s.store.Expire(ctx, key, ttl)
	s.counters.Writes.Inc()
}

// Remove deletes one feed's entry from the address's metadata hash.
func (s *Service) Remove(ctx context.Context, address domain.Address, feedId domain.FeedId) {
	if err := s.store.HDel(ctx, s.key(address), feedId.String()); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("feed-metadata hdel failed")
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
