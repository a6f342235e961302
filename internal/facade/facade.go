// Package facade is the Read-Through Orchestrator: the single entry point
// the RPC transport calls into. Every read first consults the relevant
// cache projection(s) and falls through to the durable store on a miss,
// repopulating the cache before returning; every membership mutation
// commits its store change and the group key-rotation engine's new
// generation in one transaction, then publishes the event that drives
// cache invalidation.
//
// Generalizes the teacher's TablelandMesa (internal/tableland/impl/mesa.go),
// which is the same shape of thing: one struct gathering every collaborator
// a request handler needs, with each RPC a short method on it.
package facade

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/blockchainclock"
	"github.com/hushnetwork/node-cache/internal/cache/projections/feedmetadata"
	"github.com/hushnetwork/node-cache/internal/cache/projections/identity"
	"github.com/hushnetwork/node-cache/internal/cache/projections/messagetail"
	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/cache/projections/pushtoken"
	"github.com/hushnetwork/node-cache/internal/cache/projections/reactiontally"
	"github.com/hushnetwork/node-cache/internal/cache/projections/readwatermark"
	"github.com/hushnetwork/node-cache/internal/cache/projections/userfeeds"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/events"
	"github.com/hushnetwork/node-cache/internal/rotation"
	"github.com/hushnetwork/node-cache/internal/store"
	"github.com/hushnetwork/node-cache/pkg/logging"
)

// Service is the Read-Through Orchestrator.
type Service struct {
	userFeeds     *userfeeds.Service
	feedMetadata  *feedmetadata.Service
	participants  *participants.Service
	identity      *identity.Service
	messageTail   *messagetail.Service
	readWatermark *readwatermark.Service
	tallies       *reactiontally.Service
	pushTokens    *pushtoken.Service

	profiles       *store.ProfileRepo
	feeds          *store.FeedRepo
	messages       *store.MessageRepo
	keyGenerations *store.KeyGenerationRepo
	readPositions  *store.ReadPositionRepo
	reactions      *store.ReactionRepo
	deviceTokens   *store.DeviceTokenRepo
	txn            *store.Transactor

	rotation *rotation.Engine
	bus      *events.Bus
	clock    *blockchainclock.Clock

	log zerolog.Logger
}

// Deps bundles every collaborator Service needs, so New has one argument
// instead of seventeen.
type Deps struct {
	UserFeeds     *userfeeds.Service
	FeedMetadata  *feedmetadata.Service
	Participants  *participants.Service
	Identity      *identity.Service
	MessageTail   *messagetail.Service
	ReadWatermark *readwatermark.Service
	Tallies       *reactiontally.Service
	PushTokens    *pushtoken.Service

	Profiles       *store.ProfileRepo
	Feeds          *store.FeedRepo
	Messages       *store.MessageRepo
	KeyGenerations *store.KeyGenerationRepo
	ReadPositions  *store.ReadPositionRepo
	Reactions      *store.ReactionRepo
	DeviceTokens   *store.DeviceTokenRepo
	Txn            *store.Transactor

	Rotation *rotation.Engine
	Bus      *events.Bus
	Clock    *blockchainclock.Clock
}

// New constructs the orchestrator.
func New(d Deps, log zerolog.Logger) *Service {
	return &Service{
		userFeeds:     d.UserFeeds,
		feedMetadata:  d.FeedMetadata,
		participants:  d.Participants,
		identity:      d.Identity,
		messageTail:   d.MessageTail,
		readWatermark: d.ReadWatermark,
		tallies:       d.Tallies,
		pushTokens:    d.PushTokens,

		profiles:       d.Profiles,
		feeds:          d.Feeds,
		messages:       d.Messages,
		keyGenerations: d.KeyGenerations,
		readPositions:  d.ReadPositions,
		reactions:      d.Reactions,
		deviceTokens:   d.DeviceTokens,
		txn:            d.Txn,

		rotation: d.Rotation,
		bus:      d.Bus,
		clock:    d.Clock,

		log: logging.Component(log, "facade"),
	}
}

// FeedsForAddress implements events.FeedMembershipSource, reading through
// the user-feeds projection to the store on a miss. It is the collaborator
// the identity-cascade invalidator uses to enumerate every feed an address
// participates in.
func (s *Service) FeedsForAddress(ctx context.Context, address domain.Address) ([]domain.FeedId, error) {
	if feedIds, ok := s.userFeeds.Get(ctx, address); ok {
		return feedIds, nil
	}
	feedIds, err := s.feeds.FeedsForAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	s.userFeeds.Set(ctx, address, feedIds)
	return feedIds, nil
}
