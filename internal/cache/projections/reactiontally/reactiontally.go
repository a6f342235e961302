// Package reactiontally implements the supplemented Reaction-Tally
// projection: a per-feed hash of messageId to the homomorphic reaction
// aggregate riding alongside the message tail.
package reactiontally

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const ttl = 24 * time.Hour

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Service is the Reaction-Tally projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Reaction-Tally projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "reaction-tally").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(feedId domain.FeedId) string {
	return s.prefix + "feed:" + feedId.String() + ":tallies"
}

// GetSince returns every cached tally for feedId whose Version exceeds
// sinceVersion, or (nil, false) on miss.
func (s *Service) GetSince(ctx context.Context, feedId domain.FeedId, sinceVersion uint64) ([]domain.ReactionTally, bool) {
	raw, err := s.store.HGetAll(ctx, s.key(feedId))
	if err != nil {
		s.counters.ReadErrors.Inc()
		return nil, false
	}
	if len(raw) == 0 {
		s.counters.Misses.Inc()
		return nil, false
	}
	out := make([]domain.ReactionTally, 0, len(raw))
	for _, value := range raw {
		var t domain.ReactionTally
		if err := json.Unmarshal([]byte(value), &t); err != nil {
			continue
		}
		if t.Version > sinceVersion {
			out = append(out, t)
		}
	}
	s.counters.Hits.Inc()
	return out, true
}

// Upsert writes one message's tally and refreshes the hash's TTL.
func (s *Service) Upsert(ctx context.Context, feedId domain.FeedId, messageId domain.MessageId, tally domain.ReactionTally) {
	b, err := json.Marshal(tally)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	key := s.key(feedId)
	if err := s.store.HSet(ctx, key, map[string]string{messageId.String(): string(b)}); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("reaction-tally upsert failed")
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// Invalidate deletes the entire per-feed tally hash.
func (s *Service) Invalidate(ctx context.Context, feedId domain.FeedId) {
	if err := s.store.Del(ctx, s.key(feedId)); err != nil {
		s.counters.WriteErrors.Inc()
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
