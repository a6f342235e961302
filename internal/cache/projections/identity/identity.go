// Package identity implements the Identity projections: a per-address
// profile blob and a global display-name index shared across every feed
// title derivation.
package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const (
	profileTTL = 7 * 24 * time.Hour
)

const displayNamesKey = "identities:display_names"

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HSet(ctx context.Context, key string, fields map[string]string) error
}

type hmgetStore interface {
	store
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
}

// Service is the Identity projection pair.
type Service struct {
	store    hmgetStore
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Identity projection pair.
func New(s hmgetStore, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "identity").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) profileKey(address domain.Address) string {
	return s.prefix + "identity:" + string(address)
}

// GetProfile returns the cached profile blob for address, or (zero, false)
// on miss.
func (s *Service) GetProfile(ctx context.Context, address domain.Address) (domain.Profile, bool) {
	raw, err := s.store.Get(ctx, s.profileKey(address))
	if err != nil || raw == "" {
		if err != nil {
			s.counters.ReadErrors.Inc()
		} else {
			s.counters.Misses.Inc()
		}
		return domain.Profile{}, false
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn().Err(err).Msg("identity profile blob malformed")
		return domain.Profile{}, false
	}
	if err := s.store.Expire(ctx, s.profileKey(address), profileTTL); err != nil {
		s.counters.WriteErrors.Inc()
	}
	s.counters.Hits.Inc()
	return p, true
}

// SetProfile writes the profile blob with the standard TTL, refreshed on
// every hit per the read-through convention.
func (s *Service) SetProfile(ctx context.Context, profile domain.Profile) {
	b, err := json.Marshal(profile)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.Set(ctx, s.profileKey(profile.Address), string(b), profileTTL); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("identity profile set failed")
		return
	}
	s.counters.Writes.Inc()
}

// InvalidateProfile deletes the cached profile blob — called on receipt of
// an IdentityUpdated event.
func (s *Service) InvalidateProfile(ctx context.Context, address domain.Address) {
	if err := s.store.Del(ctx, s.profileKey(address)); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("identity profile invalidate failed")
	}
}

func (s *Service) displayNamesKey() string { return s.prefix + displayNamesKey }

// GetDisplayNames resolves addresses against the global display-name hash
// with a single round-trip. The returned map contains only the addresses
// that hit; the caller must resolve the remainder from the database.
func (s *Service) GetDisplayNames(ctx context.Context, addresses []domain.Address) map[domain.Address]string {
	if len(addresses) == 0 {
		return nil
	}
	fields := make([]string, len(addresses))
	for i, a := range addresses {
		fields[i] = string(a)
	}
	raw, err := s.store.HMGet(ctx, s.displayNamesKey(), fields...)
	if err != nil {
		s.counters.ReadErrors.Inc()
		s.log.Warn().Err(err).Msg("identity display-name hmget failed")
		return nil
	}
	out := make(map[domain.Address]string, len(raw))
	for _, a := range addresses {
		name, ok := raw[string(a)]
		if !ok {
			s.counters.Misses.Inc()
			continue
		}
		out[a] = name
		s.counters.Hits.Inc()
	}
	return out
}

// SetDisplayName writes a single address's display name into the global
// hash. The hash carries no TTL: it is only ever updated on identity
// events, per the data model.
func (s *Service) SetDisplayName(ctx context.Context, address domain.Address, displayName string) {
	if err := s.store.HSet(ctx, s.displayNamesKey(), map[string]string{string(address): displayName}); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("identity display-name hset failed")
		return
	}
	s.counters.Writes.Inc()
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
