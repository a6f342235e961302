// Package messagetail implements the Feed-Message-Tail projection: a
// bounded, newest-at-head list of the most recent messages per feed.
package messagetail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const (
	ttl         = 24 * time.Hour
	maxMessages = 100
)

type store interface {
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Service is the Feed-Message-Tail projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Feed-Message-Tail projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "message-tail").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(feedId domain.FeedId) string {
	return s.prefix + "feed:" + feedId.String() + ":messages"
}

// Add prepends message, trims the list to maxMessages, and refreshes the
// TTL. These are three separate commands, not one atomic unit: another
// client can observe the list between them.
func (s *Service) Add(ctx context.Context, feedId domain.FeedId, message domain.FeedMessage) {
	b, err := json.Marshal(message)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	key := s.key(feedId)
	if err := s.store.LPush(ctx, key, string(b)); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("message-tail lpush failed")
		return
	}
	if err := s.store.LTrim(ctx, key, 0, maxMessages-1); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// Get returns the cached tail for feedId, optionally filtered to
// blockIndex > since. Malformed individual entries are skipped rather than
// failing the whole read. Returns (nil, false) only on a true miss; an
// existing-but-empty key returns an empty, non-nil slice and true.
func (s *Service) Get(ctx context.Context, feedId domain.FeedId, since *domain.BlockIndex) ([]domain.FeedMessage, bool) {
	key := s.key(feedId)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.counters.ReadErrors.Inc()
		return nil, false
	}
	if !exists {
		s.counters.Misses.Inc()
		return nil, false
	}

	raw, err := s.store.LRange(ctx, key, 0, -1)
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Msg("message-tail lrange failed")
		return nil, false
	}

	out := make([]domain.FeedMessage, 0, len(raw))
	for _, item := range raw {
		var m domain.FeedMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.log.Debug().Msg("skipping malformed message-tail entry")
			continue
		}
		if since != nil && m.BlockIndex <= *since {
			continue
		}
		out = append(out, m)
	}
	s.counters.Hits.Inc()
	return out, true
}

// Populate replaces the tail with messages: it deletes the key, writes the
// newest maxMessages of them, sorted by (blockIndex, timestamp), in a single
// LPush so the list ends up newest-at-head, and then sets the TTL. The delete
// and the push are separate commands, so a reader between them sees a miss.
func (s *Service) Populate(ctx context.Context, feedId domain.FeedId, messages []domain.FeedMessage) {
	key := s.key(feedId)
	if err := s.store.Del(ctx, key); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if len(messages) == 0 {
		return
	}

	sorted := make([]domain.FeedMessage, len(messages))
	copy(sorted, messages)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	start := 0
	if len(sorted) > maxMessages {
		start = len(sorted) - maxMessages
	}
	// LPush prepends its values one after another, so passing them oldest
	// first leaves the oldest-kept message at the tail and the newest at the
	// head.
	values := make([]string, 0, len(sorted)-start)
	for _, m := range sorted[start:] {
		b, err := json.Marshal(m)
		if err != nil {
			s.counters.WriteErrors.Inc()
			continue
		}
		values = append(values, string(b))
	}
	if err := s.store.LPush(ctx, key, values...); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("message-tail populate lpush failed")
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

func less(a, b domain.FeedMessage) bool {
	if a.BlockIndex != b.BlockIndex {
		return a.BlockIndex < b.BlockIndex
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Invalidate deletes the cached tail for feedId.
func (s *Service) Invalidate(ctx context.Context, feedId domain.FeedId) {
	if err := s.store.Del(ctx, s.key(feedId)); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("message-tail invalidate failed")
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
