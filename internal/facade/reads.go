package facade

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hushnetwork/node-cache/internal/cache/projections/feedmetadata"
	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/store"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

// messageTailWindow bounds how many messages a store fallback loads per
// feed, mirroring the message-tail projection's own retained-window size.
const messageTailWindow = 100

// FeedSummary is one entry of GetFeeds' response: a feed's viewer-relative
// title and the effective block index a client should resume sync from.
type FeedSummary struct {
	FeedId               domain.FeedId
	Type                 domain.FeedType
	Title                string
	EffectiveBlockIndex  domain.BlockIndex
	CurrentKeyGeneration *domain.Generation
	Participants         []domain.FeedParticipant
}

// GetFeeds returns every feed address currently participates in, with a
// viewer-relative title and the effective block index computed per feed.
// It reads through the user-feeds and feed-metadata projections before
// falling back to the store.
func (s *Service) GetFeeds(ctx context.Context, address domain.Address) ([]FeedSummary, error) {
	feedIds, err := s.FeedsForAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("listing feeds for %s: %w", address, err)
	}

	cached, hit := s.feedMetadata.GetAll(ctx, address)
	if !hit {
		cached = make(map[domain.FeedId]feedmetadata.Entry, len(feedIds))
	}

	missing := make([]domain.FeedId, 0)
	for _, feedId := range feedIds {
		if _, ok := cached[feedId]; !ok {
			missing = append(missing, feedId)
		}
	}

	toCache := make(map[domain.FeedId]feedmetadata.Entry, len(missing))
	for _, feedId := range missing {
		entry, err := s.loadFeedMetadataEntry(ctx, address, feedId)
		if err != nil {
			s.log.Warn().Err(err).Str("feedId", feedId.String()).Msg("could not load feed metadata on cache miss")
			continue
		}
		cached[feedId] = entry
		toCache[feedId] = entry
	}
	if len(toCache) > 0 {
		s.feedMetadata.SetMany(ctx, address, toCache)
	}

	out := make([]FeedSummary, 0, len(feedIds))
	for _, feedId := range feedIds {
		entry, ok := cached[feedId]
		if !ok {
			continue
		}
		out = append(out, FeedSummary{
			FeedId:               feedId,
			Type:                 entry.Type,
			Title:                entry.Title,
			EffectiveBlockIndex:  entry.LastBlockIndex,
			CurrentKeyGeneration: entry.CurrentKeyGeneration,
			Participants:         entry.Participants,
		})
	}
	return out, nil
}

// loadFeedMetadataEntry builds a fresh feedmetadata.Entry for (address,
// feedId) from the store: feed record, participants, the viewer-relative
// title, and the effective block index (§ EffectiveBlockIndex).
func (s *Service) loadFeedMetadataEntry(ctx context.Context, address domain.Address, feedId domain.FeedId) (feedmetadata.Entry, error) {
	feed, err := s.feeds.GetFeed(ctx, feedId)
	if err != nil {
		return feedmetadata.Entry{}, err
	}
	feed.Participants, err = s.feeds.GetParticipants(ctx, feedId)
	if err != nil {
		return feedmetadata.Entry{}, err
	}

	title, err := s.deriveTitle(ctx, address, feed)
	if err != nil {
		return feedmetadata.Entry{}, err
	}

	addresses := make([]domain.Address, len(feed.Participants))
	for i, p := range feed.Participants {
		addresses[i] = p.Address
	}
	profiles, err := s.profiles.GetMany(ctx, addresses)
	if err != nil {
		return feedmetadata.Entry{}, err
	}
	blockIndices := make(map[domain.Address]domain.BlockIndex, len(profiles))
	for addr, p := range profiles {
		blockIndices[addr] = p.BlockIndex
	}

	var currentGeneration *domain.Generation
	latest, err := s.keyGenerations.LatestGeneration(ctx, feedId)
	if err == nil && latest >= 0 {
		g := domain.Generation(latest)
		currentGeneration = &g
	}

	return feedmetadata.Entry{
		Title:                title,
		Type:                 feed.Type,
		LastBlockIndex:       domain.EffectiveBlockIndex(feed, blockIndices),
		Participants:         feed.Participants,
		CreatedAtBlock:       feed.BlockIndex,
		CurrentKeyGeneration: currentGeneration,
	}, nil
}

// FeedMessages is one feed's portion of a GetFeedMessages response.
type FeedMessages struct {
	FeedId   domain.FeedId
	Messages []domain.FeedMessage
}

// GetFeedMessagesResult bundles every feed's new messages plus the reaction
// tallies that changed since sinceTallyVersion, and the highest tally
// version observed so the caller can pass it back on the next poll.
type GetFeedMessagesResult struct {
	Feeds             []FeedMessages
	Tallies           []domain.ReactionTally
	MaxTallyVersion   uint64
	DisplayNamesByAddr map[domain.Address]string
}

// GetFeedMessages enumerates every feed address participates in
// unconditionally (it does not trust a client-supplied feed list), reads
// through the message-tail projection for messages since sinceBlock, and
// appends reaction tallies newer than sinceTallyVersion.
func (s *Service) GetFeedMessages(ctx context.Context, address domain.Address, sinceBlock *domain.BlockIndex, sinceTallyVersion uint64) (GetFeedMessagesResult, error) {
	feedIds, err := s.FeedsForAddress(ctx, address)
	if err != nil {
		return GetFeedMessagesResult{}, fmt.Errorf("listing feeds for %s: %w", address, err)
	}

	result := GetFeedMessagesResult{
		Feeds:              make([]FeedMessages, 0, len(feedIds)),
		DisplayNamesByAddr: make(map[domain.Address]string),
	}
	issuers := make(map[domain.Address]struct{})

	for _, feedId := range feedIds {
		messages, hit := s.messageTail.Get(ctx, feedId, sinceBlock)
		if !hit {
			// The cached tail holds the most recent messages regardless of
			// sinceBlock; the filter is applied after populating it.
			tail, err := s.messages.Tail(ctx, feedId, nil, messageTailWindow)
			if err != nil {
				s.log.Warn().Err(err).Str("feedId", feedId.String()).Msg("could not load message tail on cache miss")
				continue
			}
			s.messageTail.Populate(ctx, feedId, tail)
			for _, m := range tail {
				if sinceBlock == nil || m.BlockIndex > *sinceBlock {
					messages = append(messages, m)
				}
			}
		}
		if len(messages) > 0 {
			result.Feeds = append(result.Feeds, FeedMessages{FeedId: feedId, Messages: messages})
		}
		for _, m := range messages {
			issuers[m.IssuerAddress] = struct{}{}
		}

		tallies, ok := s.tallies.GetSince(ctx, feedId, sinceTallyVersion)
		if ok {
			for _, t := range tallies {
				result.Tallies = append(result.Tallies, t)
				if t.Version > result.MaxTallyVersion {
					result.MaxTallyVersion = t.Version
				}
			}
		}
	}

	addrs := make([]domain.Address, 0, len(issuers))
	for a := range issuers {
		addrs = append(addrs, a)
	}
	resolved := s.resolveDisplayNames(ctx, addrs)
	for a, name := range resolved {
		result.DisplayNamesByAddr[a] = name
	}

	return result, nil
}

// resolveDisplayNames looks up every address's display name with a single
// cache round trip, backfilling the cache from the profile store for any
// miss rather than issuing one profile lookup per address.
func (s *Service) resolveDisplayNames(ctx context.Context, addresses []domain.Address) map[domain.Address]string {
	names := s.identity.GetDisplayNames(ctx, addresses)
	if names == nil {
		names = make(map[domain.Address]string, len(addresses))
	}
	missing :=make([]domain.Address, 0, len(addresses)-len(names))
	for _, a := range addresses {
		if _, ok := names[a]; !ok {
			missing = append(missing, a)
		}
	}
	if len(missing) == 0 {
		return names
	}
	profiles, err := s.profiles.GetMany(ctx, missing)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not backfill display names from profile store")
		return names
	}
	for addr, p := range profiles {
		names[addr] = p.Alias
		s.identity.SetDisplayName(ctx, addr, p.Alias)
	}
	return names
}

// GetMessageById fetches a single message directly from the store; single
// messages are never cached, per the message-tail projection covering only
// the recent-window access pattern.
func (s *Service) GetMessageById(ctx context.Context, messageId domain.MessageId) (domain.FeedMessage, error) {
	return s.messages.GetByID(ctx, messageId)
}

// GetGroupMembers reads through the enriched-member cache for a group feed.
func (s *Service) GetGroupMembers(ctx context.Context, feedId domain.FeedId) ([]participants.Member, error) {
	bundle, ok := s.participants.GetEnrichedMembers(ctx, feedId)
	if ok {
		return bundle.Members, nil
	}

	rows, err := s.feeds.GetParticipants(ctx, feedId)
	if err != nil {
		return nil, fmt.Errorf("loading participants for feed %s: %w", feedId.String(), err)
	}

	addresses := make([]domain.Address, len(rows))
	for i, r := range rows {
		addresses[i] = r.Address
	}
	names := s.resolveDisplayNames(ctx, addresses)

	members := make([]participants.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, participants.Member{
			Address:       r.Address,
			DisplayName:   names[r.Address],
			Role:          r.Role,
			JoinedAtBlock: r.JoinedAtBlock,
			LeftAtBlock:   r.LeftAtBlock,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAtBlock < members[j].JoinedAtBlock })

	s.participants.SetEnrichedMembers(ctx, feedId, participants.MembersBundle{Members: members})
	return members, nil
}

// KeyGenerationView is one generation as exposed to a specific requester:
// only their own wrapped key, never the raw per-member map, and never
// validToBlock (a rotated-out member must not learn when the group's key
// changed after they left).
type KeyGenerationView struct {
	Version        domain.Generation
	ValidFromBlock domain.BlockIndex
	EncryptedKey   []byte
}

// GetKeyGenerations reads through the key-generations cache for a feed and
// narrows the bundle to the requester's own wrapped key per generation.
// Every generation gets an entry regardless of membership at the time: a
// requester who joined mid-history gets an empty EncryptedKey for the
// generations that predate them.
func (s *Service) GetKeyGenerations(ctx context.Context, feedId domain.FeedId, requester domain.Address) ([]KeyGenerationView, error) {
	bundle, ok := s.participants.GetKeyGenerations(ctx, feedId)
	if !ok {
		generations, err := s.keyGenerations.GetAll(ctx, feedId)
		if err != nil {
			return nil, fmt.Errorf("loading key generations for feed %s: %w", feedId.String(), err)
		}
		entries := make([]participants.KeyGenerationEntry, len(generations))
		for i, g := range generations {
			entries[i] = participants.KeyGenerationEntry{
				Version:               g.Generation,
				ValidFromBlock:        g.ValidFromBlock,
				ValidToBlock:          g.ValidToBlock,
				EncryptedKeysByMember: g.EncryptedKeys,
			}
		}
		bundle = participants.KeyGenerationsBundle{KeyGenerations: entries}
		s.participants.SetKeyGenerations(ctx, feedId, bundle)
	}

	out := make([]KeyGenerationView, len(bundle.KeyGenerations))
	for i, g := range bundle.KeyGenerations {
		out[i] = KeyGenerationView{
			Version:        g.Version,
			ValidFromBlock: g.ValidFromBlock,
			EncryptedKey:   g.EncryptedKeysByMember[requester],
		}
	}
	return out, nil
}

// HasPersonalFeed reports whether address already has a Personal feed,
// reading through the feed-metadata cache populated by GetFeeds.
func (s *Service) HasPersonalFeed(ctx context.Context, address domain.Address) (bool, error) {
	feeds, err := s.GetFeeds(ctx, address)
	if err != nil {
		return false, err
	}
	for _, f := range feeds {
		if f.Type == domain.FeedTypePersonal {
			return true, nil
		}
	}
	return false, nil
}

// IsFeedInBlockchain reports whether feedId has ever been committed to the
// durable store (the projection layer never tracks feed existence on its
// own, so this always reads through to the store).
func (s *Service) IsFeedInBlockchain(ctx context.Context, feedId domain.FeedId) (bool, error) {
	_, err := s.feeds.GetFeed(ctx, feedId)
	if err == nil {
		return true, nil
	}
	if apierrors.KindOf(err) == apierrors.KindNotFound || errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("checking feed existence for %s: %w", feedId.String(), err)
}
