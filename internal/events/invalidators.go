package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/cache/projections/feedmetadata"
	"github.com/hushnetwork/node-cache/internal/cache/projections/identity"
	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/cache/projections/reactiontally"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/logging"
)

// FeedMembershipSource resolves, for an address, every feed it currently
// participates in — needed so an identity rename can cascade into every
// cached title and enriched-member view the address touches.
type FeedMembershipSource func(ctx context.Context, address domain.Address) ([]domain.FeedId, error)

// FeedMembersSource resolves the authoritative (store-backed, not
// cache-backed) active membership of one feed — used so a title cascade
// reaches every viewer even when the participants projection is cold.
type FeedMembersSource func(ctx context.Context, feedId domain.FeedId) ([]domain.Address, error)

// TitleResolver recomputes the per-address feed-metadata title for one feed
// after an identity change (e.g. the other participant in a Chat feed
// renamed).
type TitleResolver func(ctx context.Context, viewer domain.Address, feedId domain.FeedId) (string, error)

// ProfileSource resolves the authoritative profile for an address from the
// durable store, bypassing the identity cache — needed right after that
// cache has been invalidated, when reading back through it would always
// miss.
type ProfileSource func(ctx context.Context, address domain.Address) (domain.Profile, error)

// Invalidators bundles the projection handles the five (plus the
// supplemented reaction) event handlers mutate directly, and wires them as
// Bus subscribers.
type Invalidators struct {
	identity     *identity.Service
	participants *participants.Service
	feedMetadata *feedmetadata.Service
	tallies      *reactiontally.Service

	feedsOf        FeedMembershipSource
	membersOf      FeedMembersSource
	resolveTitle   TitleResolver
	resolveProfile ProfileSource
	log            zerolog.Logger
}

// NewInvalidators constructs the invalidator set.
func NewInvalidators(
	identitySvc *identity.Service,
	participantsSvc *participants.Service,
	feedMetadataSvc *feedmetadata.Service,
	talliesSvc *reactiontally.Service,
	feedsOf FeedMembershipSource,
	membersOf FeedMembersSource,
	resolveTitle TitleResolver,
	resolveProfile ProfileSource,
	log zerolog.Logger,
) *Invalidators {
	return &Invalidators{
		identity:       identitySvc,
		participants:   participantsSvc,
		feedMetadata:   feedMetadataSvc,
		tallies:        talliesSvc,
		feedsOf:        feedsOf,
		membersOf:      membersOf,
		resolveTitle:   resolveTitle,
		resolveProfile: resolveProfile,
		log:            logging.Component(log, "invalidators"),
	}
}

// Register subscribes every handler to bus.
func (inv *Invalidators) Register(bus *Bus) {
	bus.Subscribe(inv.onIdentityUpdated)
	bus.Subscribe(inv.onUserJoinedGroup)
	bus.Subscribe(inv.onUserLeftGroup)
	bus.Subscribe(inv.onUserBannedFromGroup)
	bus.Subscribe(inv.onGroupTitleChanged)
	bus.Subscribe(inv.onMessageReacted)
}

func (inv *Invalidators) onIdentityUpdated(ctx context.Context, e Event) {
	if e.Kind != KindIdentityUpdated {
		return
	}
	inv.identity.InvalidateProfile(ctx, e.Address)

	// The cache entry was just invalidated, so reading it back would always
	// miss — resolve the new alias from the durable store instead, and write
	// it into the global display-names hash unconditionally.
	profile, err := inv.resolveProfile(ctx, e.Address)
	if err != nil {
		inv.log.Warn().Err(err).Str("address", string(e.Address)).Msg("could not resolve renamed profile")
	} else {
		inv.identity.SetDisplayName(ctx, e.Address, profile.Alias)
	}

	feedIds, err := inv.feedsOf(ctx, e.Address)
	if err != nil {
		inv.log.Warn().Err(err).Str("address", string(e.Address)).Msg("could not enumerate feeds for identity cascade")
		return
	}
	for _, feedId := range feedIds {
		inv.participants.InvalidateEnrichedMembers(ctx, feedId)

		// Every member viewing this feed, the renamed address included (its
		// Personal feed title carries its own alias), gets the title
		// re-derived and rewritten.
		members, err := inv.membersOf(ctx, feedId)
		if err != nil {
			inv.log.Warn().Err(err).Str("feedId", feedId.String()).Msg("could not enumerate feed members for identity cascade")
			continue
		}
		for _, member := range members {
			newTitle, err := inv.resolveTitle(ctx, member, feedId)
			if err != nil {
				inv.log.Warn().Err(err).Str("feedId", feedId.String()).Str("viewer", string(member)).Msg("could not resolve cascaded title")
				continue
			}
			inv.feedMetadata.UpdateTitle(ctx, member, feedId, newTitle)
		}
	}
}

func (inv *Invalidators) onUserJoinedGroup(ctx context.Context, e Event) {
	if e.Kind != KindUserJoinedGroup {
		return
	}
	inv.participants.AddMember(ctx, e.FeedId, e.Address)
	inv.participants.InvalidateKeyGenerations(ctx, e.FeedId)
	inv.participants.InvalidateEnrichedMembers(ctx, e.FeedId)
}

func (inv *Invalidators) onUserLeftGroup(ctx context.Context, e Event) {
	if e.Kind != KindUserLeftGroup {
		return
	}
	inv.participants.RemoveMember(ctx, e.FeedId, e.Address)
	inv.participants.InvalidateKeyGenerations(ctx, e.FeedId)
	inv.participants.InvalidateEnrichedMembers(ctx, e.FeedId)
}

func (inv *Invalidators) onUserBannedFromGroup(ctx context.Context, e Event) {
	if e.Kind != KindUserBannedFromGroup {
		return
	}
	inv.participants.RemoveMember(ctx, e.FeedId, e.Address)
	inv.participants.InvalidateKeyGenerations(ctx, e.FeedId)
	inv.participants.InvalidateEnrichedMembers(ctx, e.FeedId)
}

func (inv *Invalidators) onGroupTitleChanged(ctx context.Context, e Event) {
	if e.Kind != KindGroupTitleChanged {
		return
	}
	members, err := inv.membersOf(ctx, e.FeedId)
	if err != nil {
		inv.log.Warn().Err(err).Str("feedId", e.FeedId.String()).Msg("could not enumerate feed members for title cascade")
		return
	}
	for _, address := range members {
		inv.feedMetadata.UpdateTitle(ctx, address, e.FeedId, e.NewTitle)
	}
}

func (inv *Invalidators) onMessageReacted(ctx context.Context, e Event) {
	if e.Kind != KindMessageReacted {
		return
	}
	inv.tallies.Upsert(ctx, e.FeedId, e.MessageId, e.Tally)
}
