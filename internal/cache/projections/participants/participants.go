// Package participants implements the Group-Participants projection: the
// active-member set, the key-generation bundle, and the enriched-member
// view for a group feed.
package participants

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/metrics"
)

const (
	participantsTTL = time.Hour
	keysTTL         = time.Hour
	membersTTL      = time.Hour
)

type store interface {
	SMembers(ctx context.Context, key string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// KeyGenerationEntry is one generation within the cached bundle, with the
// field names the wire layout specifies verbatim.
type KeyGenerationEntry struct {
	Version               domain.Generation         `json:"version"`
	ValidFromBlock        domain.BlockIndex         `json:"validFromBlock"`
	ValidToBlock          *domain.BlockIndex        `json:"validToBlock,omitempty"`
	EncryptedKeysByMember map[domain.Address][]byte `json:"encryptedKeysByMember"`
}

// KeyGenerationsBundle is the cached JSON document for a feed's key
// generations, ordered ascending by version.
type KeyGenerationsBundle struct {
	KeyGenerations []KeyGenerationEntry `json:"keyGenerations"`
}

// Member is one entry in the enriched-member cache.
type Member struct {
	Address       domain.Address     `json:"address"`
	DisplayName   string             `json:"displayName"`
	Role          domain.ParticipantRole `json:"role"`
	JoinedAtBlock domain.BlockIndex  `json:"joinedAtBlock"`
	LeftAtBlock   *domain.BlockIndex `json:"leftAtBlock,omitempty"`
}

// MembersBundle is the cached JSON document for a feed's enriched members.
type MembersBundle struct {
	Members []Member `json:"members"`
}

// Service is the Group-Participants projection.
type Service struct {
	store    store
	prefix   string
	log      zerolog.Logger
	counters *metrics.ProjectionCounters
}

// New constructs the Group-Participants projection.
func New(s store, prefix string, log zerolog.Logger) *Service {
	return &Service{store: s, prefix: prefix, log: log.With().Str("projection", "group-participants").Logger(), counters: metrics.NewProjectionCounters()}
}

func (s *Service) participantsKey(feedId domain.FeedId) string {
	return s.prefix + "feed:" + feedId.String() + ":participants"
}

func (s *Service) keysKey(feedId domain.FeedId) string {
	return s.prefix + "feed:" + feedId.String() + ":keys"
}

func (s *Service) membersKey(feedId domain.FeedId) string {
	return s.prefix + "group:" + feedId.String() + ":members"
}

// GetMembers returns the cached active-member address set, or (nil, false)
// on miss.
func (s *Service) GetMembers(ctx context.Context, feedId domain.FeedId) ([]domain.Address, bool) {
	key := s.participantsKey(feedId)
	exists, err := s.store.Exists(ctx, key)
	if err != nil || !exists {
		if err != nil {
			s.counters.ReadErrors.Inc()
		} else {
			s.counters.Misses.Inc()
		}
		return nil, false
	}
	raw, err := s.store.SMembers(ctx, key)
	if err != nil {
		s.counters.ReadErrors.Inc()
		return nil, false
	}
	_ = s.store.Expire(ctx, key, participantsTTL)
	out := make([]domain.Address, len(raw))
	for i, a := range raw {
		out[i] = domain.Address(a)
	}
	s.counters.Hits.Inc()
	return out, true
}

// SetMembers writes the full active-member set.
func (s *Service) SetMembers(ctx context.Context, feedId domain.FeedId, addresses []domain.Address) {
	key := s.participantsKey(feedId)
	if err := s.store.Del(ctx, key); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	members := make([]string, len(addresses))
	for i, a := range addresses {
		members[i] = string(a)
	}
	if len(members) > 0 {
		if err := s.store.SAdd(ctx, key, members...); err != nil {
			s.counters.WriteErrors.Inc()
			s.log.Warn().Err(err).Msg("participants sadd failed")
			return
		}
	}
	if err := s.store.Expire(ctx, key, participantsTTL); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	s.counters.Writes.Inc()
}

// AddMember adds a single address to the participants set, but only if the
// key already exists — no partial cache creation from the write path.
func (s *Service) AddMember(ctx context.Context, feedId domain.FeedId, address domain.Address) {
	key := s.participantsKey(feedId)
	exists, err := s.store.Exists(ctx, key)
	if err != nil || !exists {
		return
	}
	if err := s.store.SAdd(ctx, key, string(address)); err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	_ = s.store.Expire(ctx, key, participantsTTL)
	s.counters.Writes.Inc()
}

// RemoveMember is an idempotent SREM.
func (s *Service) RemoveMember(ctx context.Context, feedId domain.FeedId, address domain.Address) {
	if err := s.store.SRem(ctx, s.participantsKey(feedId), string(address)); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("participants srem failed")
	}
}

// GetKeyGenerations returns the cached key-generation bundle for feedId, or
// (zero, false) on miss.
func (s *Service) GetKeyGenerations(ctx context.Context, feedId domain.FeedId) (KeyGenerationsBundle, bool) {
	raw, err := s.store.Get(ctx, s.keysKey(feedId))
	if err != nil || raw == "" {
		if err != nil {
			s.counters.ReadErrors.Inc()
		} else {
			s.counters.Misses.Inc()
		}
		return KeyGenerationsBundle{}, false
	}
	var bundle KeyGenerationsBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		s.log.Warn().Err(err).Msg("key-generations bundle malformed")
		return KeyGenerationsBundle{}, false
	}
	_ = s.store.Expire(ctx, s.keysKey(feedId), keysTTL)
	s.counters.Hits.Inc()
	return bundle, true
}

// SetKeyGenerations writes the key-generation bundle.
func (s *Service) SetKeyGenerations(ctx context.Context, feedId domain.FeedId, bundle KeyGenerationsBundle) {
	b, err := json.Marshal(bundle)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.Set(ctx, s.keysKey(feedId), string(b), keysTTL); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("key-generations set failed")
		return
	}
	s.counters.Writes.Inc()
}

// InvalidateKeyGenerations deletes the cached bundle — invalidated whenever
// membership changes.
func (s *Service) InvalidateKeyGenerations(ctx context.Context, feedId domain.FeedId) {
	if err := s.store.Del(ctx, s.keysKey(feedId)); err != nil {
		s.counters.WriteErrors.Inc()
	}
}

// GetEnrichedMembers returns the cached enriched-member bundle, or (zero,
// false) on miss.
func (s *Service) GetEnrichedMembers(ctx context.Context, feedId domain.FeedId) (MembersBundle, bool) {
	raw, err := s.store.Get(ctx, s.membersKey(feedId))
	if err != nil || raw == "" {
		if err != nil {
			s.counters.ReadErrors.Inc()
		} else {
			s.counters.Misses.Inc()
		}
		return MembersBundle{}, false
	}
	var bundle MembersBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		s.log.Warn().Err(err).Msg("enriched-members bundle malformed")
		return MembersBundle{}, false
	}
	_ = s.store.Expire(ctx, s.membersKey(feedId), membersTTL)
	s.counters.Hits.Inc()
	return bundle, true
}

// SetEnrichedMembers writes the enriched-member bundle.
func (s *Service) SetEnrichedMembers(ctx context.Context, feedId domain.FeedId, bundle MembersBundle) {
	b, err := json.Marshal(bundle)
	if err != nil {
		s.counters.WriteErrors.Inc()
		return
	}
	if err := s.store.Set(ctx, s.membersKey(feedId), string(b), membersTTL); err != nil {
		s.counters.WriteErrors.Inc()
		s.log.Warn().Err(err).Msg("enriched-members set failed")
		return
	}
	s.counters.Writes.Inc()
}

// InvalidateEnrichedMembers deletes the cached enriched-member bundle.
func (s *Service) InvalidateEnrichedMembers(ctx context.Context, feedId domain.FeedId) {
	if err := s.store.Del(ctx, s.membersKey(feedId)); err != nil {
		s.counters.WriteErrors.Inc()
	}
}

// Snapshot returns the current hit/miss/write/error counters.
func (s *Service) Snapshot() metrics.Snapshot { return s.counters.Snapshot() }
