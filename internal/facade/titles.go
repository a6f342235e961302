package facade

import (
	"context"
	"fmt"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// deriveTitle computes the viewer-relative display title for a feed, per
// feed type:
//   - Personal: the viewer's own alias, suffixed "(YOU)".
//   - Chat: the other participant's alias.
//   - Group: the feed's stored title as is; an empty stored title is
//     returned empty, with no fallback.
//   - Broadcast: the feed's stored title, falling back to "Broadcast" when
//     none was ever set.
//
// aliasOf resolves a participant's current alias; it is expected to hit the
// identity projection before falling through to the profile store.
func (s *Service) deriveTitle(ctx context.Context, viewer domain.Address, feed domain.Feed) (string, error) {
	switch feed.Type {
	case domain.FeedTypePersonal:
		alias, err := s.aliasOf(ctx, viewer)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (YOU)", alias), nil

	case domain.FeedTypeChat:
		other, ok := otherParticipant(feed, viewer)
		if !ok {
			return feed.Title, nil
		}
		alias, err := s.aliasOf(ctx, other)
		if err != nil {
			return "", err
		}
		return alias, nil

	case domain.FeedTypeGroup:
		return feed.Title, nil

	case domain.FeedTypeBroadcast:
		if feed.Title != "" {
			return feed.Title, nil
		}
		return "Broadcast", nil

	default:
		return feed.Title, nil
	}
}

// ResolveTitle implements events.TitleResolver: it re-derives the cached
// title for one (viewer, feedId) pair after an identity change cascades,
// reading the feed record from the store directly since the cascade runs
// off the write path and must see the authoritative participant list.
func (s *Service) ResolveTitle(ctx context.Context, viewer domain.Address, feedId domain.FeedId) (string, error) {
	feed, err := s.feeds.GetFeed(ctx, feedId)
	if err != nil {
		return "", fmt.Errorf("resolving title for feed %s: %w", feedId.String(), err)
	}
	feed.Participants, err = s.feeds.GetParticipants(ctx, feedId)
	if err != nil {
		return "", fmt.Errorf("resolving participants for feed %s: %w", feedId.String(), err)
	}
	return s.deriveTitle(ctx, viewer, feed)
}

func (s *Service) aliasOf(ctx context.Context, address domain.Address) (string, error) {
	if names := s.identity.GetDisplayNames(ctx, []domain.Address{address}); len(names) == 1 {
		return names[address], nil
	}
	profile, err := s.profiles.Get(ctx, address)
	if err != nil {
		return "", fmt.Errorf("resolving alias for %s: %w", address, err)
	}
	s.identity.SetDisplayName(ctx, address, profile.Alias)
	return profile.Alias, nil
}

func otherParticipant(feed domain.Feed, viewer domain.Address) (domain.Address, bool) {
	for _, p := range feed.Participants {
		if p.Address != viewer {
			return p.Address, true
		}
	}
	return "", false
}
