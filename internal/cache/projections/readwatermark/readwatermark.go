// Package readwatermark implements the Read-Watermark projection: a
// per-address hash of feedId to the last-read block index, advanced only
// monotonically (MAX-wins) so concurrent updates never regress a user's
// read position.
package readwatermark

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const ttl = 30 * 24 * time.Hour

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	MaxWinsHashUpdate(ctx context.Context, key, field string, candidate int64, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Service is the Read-Watermark projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Read-Watermark projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "read-watermark").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(address domain.Address) string {
	return s.prefix + "user:" + string(address) + ":read_positions"
}

// legacyKey is the pre-migration per-(address,feedId) key shape that
// MigrateLegacyEntry reads; GetAll never reads it.
func (s *Service) legacyKey(address domain.Address, feedId domain.FeedId) string {
	return s.prefix + "user:" + string(address) + ":read:" + feedId.String()
}

// Set advances the cached watermark for (address, feedId) to blockIndex,
// using the server-side MAX-wins script so concurrent callers racing on the
// same field never regress it. Returns whether this call's value won.
func (s *Service) Set(ctx context.Context, address domain.Address, feedId domain.FeedId, blockIndex domain.BlockIndex) bool {
	updated, err := s.store.MaxWinsHashUpdate(ctx, s.key(address), feedId.String(), int64(blockIndex), ttl)
	if err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("read-watermark max-wins update failed")
		return false
	}
	if updated {
		s.counters.Writes.Inc()
	}
	return updated
}

// GetAll returns the full feedId->blockIndex map for address, or (nil,
// false) on miss.
func (s *Service) GetAll(ctx context.Context, address domain.Address) (map[domain.FeedId]domain.BlockIndex, bool) {
	raw, err := s.store.HGetAll(ctx, s.key(address))
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Msg("read-watermark hgetall failed")
		return nil, false
	}
	if len(raw) == 0 {
		s.counters.Misses.Inc()
		return nil, false
	}
	out := make(map[domain.FeedId]domain.BlockIndex, len(raw))
	for field, value := range raw {
		feedId, err := domain.ParseFeedId(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			continue
		}
		out[feedId] = domain.BlockIndex(n)
	}
	s.counters.Hits.Inc()
	return out, true
}

// MigrateLegacyEntry checks the pre-migration per-(address,feedId) key for
// feedId and, if present, imports it into the per-address hash and deletes
// the legacy key. It runs only when called directly: GetAll does not call
// it on a miss.
func (s *Service) MigrateLegacyEntry(ctx context.Context, address domain.Address, feedId domain.FeedId) {
	legacy := s.legacyKey(address, feedId)
	value, err := s.store.Get(ctx, legacy)
	if err != nil || value == "" {
		return
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return
	}
	s.Set(ctx, address, feedId, domain.BlockIndex(n))
	_ = s.store.Del(ctx, legacy)
}

// SetAll repopulates the per-address hash wholesale, used after a miss or
// to bulk-import a set of legacy per-feed entries.
func (s *Service) SetAll(ctx context.Context, address domain.Address, positions map[domain.FeedId]domain.BlockIndex) {
	if len(positions) == 0 {
		return
	}
	fields := make(map[string]string, len(positions))
	for feedId, bi := range positions {
		fields[feedId.String()] = strconv.FormatUint(uint64(bi), 10)
	}
	key := s.key(address)
	if err := s.store.HSet(ctx, key, fields); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("read-watermark hset failed")
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
