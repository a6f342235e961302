// Package pushtoken implements the Push-Token projection: a per-address
// hash of tokenId to registered device token.
package pushtoken

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const ttl = 7 * 24 * time.Hour

type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Service is the Push-Token projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Push-Token projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "push-token").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) key(address domain.Address) string {
	return s.prefix + "push:v1:user:" + string(address)
}

// GetAll returns the cached tokenId->DeviceToken map for address, or (nil,
// false) on miss.
func (s *Service) GetAll(ctx context.Context, address domain.Address) (map[string]domain.DeviceToken, bool) {
	raw, err := s.store.HGetAll(ctx, s.key(address))
	if err != nil {
		s.counters.ReadErrors.Inc()
		return nil, false
	}
	if len(raw) == 0 {
		s.counters.Misses.Inc()
		return nil, false
	}
	out := make(map[string]domain.DeviceToken, len(raw))
	for tokenId, value := range raw {
		var t domain.DeviceToken
		if err := json.Unmarshal([]byte(value), &t); err != nil {
			continue
		}
		out[tokenId] = t
	}
	s.counters.Hits.Inc()
	return out, true
}

// SetAll repopulates the full per-address hash.
func (s *Service) SetAll(ctx context.Context, address domain.Address, tokens map[string]domain.DeviceToken) {
	if len(tokens) == 0 {
		return
	}
	fields := make(map[string]string, len(tokens))
	for tokenId, t := range tokens {
		b, err := json.Marshal(t)
		if err != nil {
			continue
		}
		fields[tokenId] = string(b)
	}
	key := s.key(address)
	if err := s.store.HSet(ctx, key, fields); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.Expire(ctx, key, ttl); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// Upsert adds or updates a single device token entry.
func (s *Service) Upsert(ctx context.Context, address domain.Address, token domain.DeviceToken) {
	b, err := json.Marshal(token)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	key := s.key(address)
	if err := s.store.HSet(ctx, key, map[string]string{token.TokenId: string(b)}); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("push-token upsert failed")
		return
	}
	_ = s.store.Expire(ctx, key, ttl)
	s.counters.Writes.Inc()
}

// Remove deletes a single token entry from address's hash.
func (s *Service) Remove(ctx context.Context, address domain.Address, tokenId string) {
	if err := s.store.HDel(ctx, s.key(address), tokenId); err != nil {
		s.counters.WriteErrors.Inc()
	}
}

// Reassign moves a token from one user's hash to another's — used when a
// shared device token is re-registered under a different account.
func (s *Service) Reassign(ctx context.Context, from, to domain.Address, token domain.DeviceToken) {
	s.Remove(ctx, from, token.TokenId)
	s.Upsert(ctx, to, token)
}

// Invalidate deletes the entire per-address push-token hash.
func (s *Service) Invalidate(ctx context.Context, address domain.Address) {
	if err := s.store.Del(ctx, s.key(address)); err != nil {
		s.counters.WriteErrors.Inc()
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
