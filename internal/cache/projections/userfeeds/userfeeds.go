// Package userfeeds implements the User-Feeds projection: a
// per-address set of feed IDs, the entry point for every sync poll.
package userfeeds

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const ttl = 5 * time.Minute

// Service is the User-Feeds projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

type store interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// New constructs the User-Feeds projection over the given KV backend.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "user-feeds").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(address domain.Address) string {
	return fmt.Sprintf("%suser:%s:feeds", s.prefix, address)
}

// Get returns the cached feed set for address, or (nil, false) on miss.
// Feed ID strings that fail to parse are skipped, not fatal.
func (s *Service) Get(ctx context.Context, address domain.Address) ([]domain.FeedId, bool) {
	exists, err := s.store.Exists(ctx, s.key(address))
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Str("address", string(address)).Msg("user-feeds exists check failed")
		return nil, false
	}
	if !exists {
		s.counters.Misses.Inc()
		return nil, false
	}

	raw, err := s.store.SMembers(ctx, s.key(address))
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Str("address", string(address)).Msg("user-feeds smembers failed")
		return nil, false
	}

	out := make([]domain.FeedId, 0, len(raw))
	for _, m := range raw {
		id, err := domain.ParseFeedId(m)
		if err != nil {
			s.log.Debug().Str("value", m).Msg("skipping malformed feed id in user-feeds set")
			continue
		}
		out = append(out, id)
	}
	s.counters.Hits.Inc()
	return out, true
}

// Set replaces the cached feed set with a delete, an add and an expire,
// issued as three separate commands rather than one atomic unit. An empty
// list deletes the key rather than leaving an empty set behind.
func (s *Service) Set(ctx context.Context, address domain.Address, feedIds []domain.FeedId) {
	key := s.key(address)
	if len(feedIds) == 0 {
		if err := s.store.Del(ctx, key); err != nil {
			s.counters.WriteErrors.Inc()
			s.log.Warn().Err(err).Msg("user-feeds delete-on-empty-set failed")
		}
		return
	}

	members := make([]string, len(feedIds))
	for i, id := range feedIds {
		members[i] = id.String()
	}

	if err := s.store.Del(ctx, key); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("user-feeds delete-before-set failed")
		return
	}
	if err := s.store.SAdd(ctx, key, members...); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("user-feeds sadd failed")
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("user-feeds expire failed")
		return
	}
	s.counters.Writes.Inc()
}

// Add appends a single feed ID, but only if the cache entry already exists
// creating a partial cache entry from the write path is forbidden.
func (s *Service) Add(ctx context.Context, address domain.Address, feedId domain.FeedId) {
	key := s.key(address)
	exists, err := s.store.Exists(ctx, key)
	if err != nil || !exists {
		return
	}
	if err := s.store.SAdd(ctx, key, feedId.String()); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("user-feeds add failed")
		return
	}
	_ = s.store.Expire(ctx, key, ttl)
	s.counters.Writes.Inc()
}

// Remove is an idempotent SREM; it is safe to call whether or not the key
// or member exists.
func (s *Service) Remove(ctx context.Context, address domain.Address, feedId domain.FeedId) {
	if err := s.store.SRem(ctx, s.key(address), feedId.String()); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("user-feeds remove failed")
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
