// Package rotation is the Group Key-Rotation Engine: the single
// correctness-critical subsystem, invoked whenever a group's membership
// changes. It allocates a dense, monotone key generation per feed,
// re-encrypts a fresh symmetric key for every member of the post-change
// set, and persists the bundle alongside the membership mutation.
//
// Generalizes the teacher's LocalTracker (pkg/nonce/impl/tracker.go), which
// serializes nonce allocation behind a mutex and treats the critical
// section's own failure modes (a submission that never confirms) as
// recoverable rather than fatal — the same shape this engine uses for
// post-commit key-distribution failures (§4.5 step 9).
package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/events"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
	"github.com/hushnetwork/node-cache/pkg/logging"
)

// MaxGroupSize is the largest membership set a rotation will accept.
const MaxGroupSize = 512

// RejoinCooldownBlocks is how many blocks must elapse after a user leaves
// before they may rejoin the same feed.
const RejoinCooldownBlocks = 100

// DefaultLockTimeout bounds how long a single rotation may hold its
// per-feed lock before the attempt is aborted and the lock released.
const DefaultLockTimeout = 30 * time.Second

// profileSource resolves a member's registered identity, used to fetch the
// public encryption key each fresh symmetric key is wrapped under.
type profileSource interface {
	Get(ctx context.Context, address domain.Address) (domain.Profile, error)
}

// feedSource is the narrow slice of the feed repository the engine needs:
// the active member set and the watermark bump that signals the new
// generation to syncing clients.
type feedSource interface {
	ActiveMembers(ctx context.Context, feedId domain.FeedId) ([]domain.Address, error)
	BumpBlockIndex(ctx context.Context, feedId domain.FeedId, atBlock domain.BlockIndex) error
}

// keyGenerationStore is the narrow slice of the key-generation repository
// the engine needs to allocate and persist a new generation.
type keyGenerationStore interface {
	LatestGeneration(ctx context.Context, feedId domain.FeedId) (int, error)
	Create(ctx context.Context, g domain.KeyGeneration) error
}

// cryptoPort is the narrow slice of internal/cryptoport.Port the engine
// needs: generate a fresh key, wrap it per member.
type cryptoPort interface {
	GenerateSymmetricKey() ([]byte, error)
	EncryptWithPublicKey(plaintext, pubkey []byte) ([]byte, error)
}

// publisher is the narrow slice of internal/events.Bus the engine needs to
// signal a completed rotation to invalidators.
type publisher interface {
	Publish(ctx context.Context, e events.Event)
}

// Result reports the outcome of a rotation attempt.
type Result struct {
	Generation domain.KeyGeneration
	// Partial is left false by Rotate and Bootstrap: a key-distribution
	// failure is reported as an apierrors.KindPartialFailure error instead.
	Partial bool
}

// Engine allocates and persists group key generations under a per-feed
// serialization lock.
type Engine struct {
	locks *lockTable

	profiles    profileSource
	feeds       feedSource
	generations keyGenerationStore
	crypto      cryptoPort
	bus         publisher

	lockTimeout time.Duration
	log         zerolog.Logger
}

// New constructs a rotation Engine.
func New(profiles profileSource, feeds feedSource, generations keyGenerationStore,
	crypto cryptoPort, bus publisher, log zerolog.Logger) *Engine {
	return &Engine{
		locks:       newLockTable(),
		profiles:    profiles,
		feeds:       feeds,
		generations: generations,
		crypto:      crypto,
		bus:         bus,
		lockTimeout: DefaultLockTimeout,
		log:         logging.Component(log, "rotation"),
	}
}

// Rotate runs the nine-step rotation algorithm for feedId: it recomputes
// the member set with the join/leave delta already applied by the caller,
// allocates the next generation, and wraps a fresh symmetric key for every
// member. delta is empty for triggers that only rename the feed — callers
// must not invoke Rotate for those.
func (e *Engine) Rotate(ctx context.Context, feedId domain.FeedId, trigger domain.RotationTrigger,
	delta MembershipDelta, atBlock domain.BlockIndex) (Result, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	release, err := e.locks.acquire(lockCtx, feedId)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindBackendUnavailable, "rotation lock timed out", err)
	}
	defer release()

	// Step 1: read current generation.
	latest, err := e.generations.LatestGeneration(ctx, feedId)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "reading current key generation", err)
	}
	if latest < 0 {
		return Result{}, apierrors.New(apierrors.KindNotFound, "feed has no key generation history")
	}

	// Step 2: compute the prospective member set.
	active, err := e.feeds.ActiveMembers(ctx, feedId)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "reading active members", err)
	}
	members := delta.apply(active)

	// Step 3: validate.
	if len(members) == 0 {
		return Result{}, apierrors.New(apierrors.KindValidationFailed, "rotation would leave the group empty")
	}
	if len(members) > MaxGroupSize {
		return Result{}, apierrors.New(apierrors.KindValidationFailed, "group too large")
	}

	// Step 4: fresh symmetric key.
	symKey, err := e.crypto.GenerateSymmetricKey()
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "generating key material", err)
	}

	// Step 5: wrap per member.
	encrypted := make(map[domain.Address][]byte, len(members))
	for _, addr := range members {
		profile, err := e.profiles.Get(ctx, addr)
		if err != nil {
			return Result{}, e.partialResult(ctx, feedId, trigger, latest, atBlock, encrypted,
				fmt.Errorf("member %s has no profile to encrypt for: %w", addr, err))
		}
		if len(profile.PublicEncryptionKey) == 0 {
			return Result{}, e.partialResult(ctx, feedId, trigger, latest, atBlock, encrypted,
				fmt.Errorf("member %s has no public encryption key", addr))
		}
		wrapped, err := e.crypto.EncryptWithPublicKey(symKey, profile.PublicEncryptionKey)
		if err != nil {
			return Result{}, e.partialResult(ctx, feedId, trigger, latest, atBlock, encrypted,
				fmt.Errorf("wrapping key for member %s: %w", addr, err))
		}
		encrypted[addr] = wrapped
	}

	generation := domain.KeyGeneration{
		FeedId:         feedId,
		Generation:     domain.Generation(latest + 1),
		ValidFromBlock: atBlock,
		Trigger:        trigger,
		EncryptedKeys:  encrypted,
	}

	// Step 6: persist atomically with the membership mutation. The caller
	// is expected to have already committed the membership change in the
	// same database transaction as this Create call (both share the
	// Transactor passed to the repositories the engine was built with).
	if err := e.generations.Create(ctx, generation); err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "persisting key generation", err)
	}

	// Step 7: bump the feed's block-index watermark.
	if err := e.feeds.BumpBlockIndex(ctx, feedId, atBlock); err != nil {
		e.log.Warn().Err(err).Str("feedId", feedId.String()).Msg("failed to bump feed watermark after rotation")
	}

	// Step 8: publish the invalidation event.
	e.bus.Publish(ctx, membershipEvent(trigger, feedId, delta))

	return Result{Generation: generation}, nil
}

// Bootstrap creates generation 0 for a brand-new feed: there is no prior
// generation to read and no event to publish, since no client has cached
// anything for a feed that does not yet exist anywhere but this call.
func (e *Engine) Bootstrap(ctx context.Context, feedId domain.FeedId, members []domain.Address, atBlock domain.BlockIndex) (Result, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	release, err := e.locks.acquire(lockCtx, feedId)
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindBackendUnavailable, "rotation lock timed out", err)
	}
	defer release()

	if len(members) == 0 {
		return Result{}, apierrors.New(apierrors.KindValidationFailed, "a feed must have at least one member")
	}
	if len(members) > MaxGroupSize {
		return Result{}, apierrors.New(apierrors.KindValidationFailed, "group too large")
	}

	symKey, err := e.crypto.GenerateSymmetricKey()
	if err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "generating key material", err)
	}

	encrypted := make(map[domain.Address][]byte, len(members))
	for _, addr := range members {
		profile, err := e.profiles.Get(ctx, addr)
		if err != nil {
			return Result{}, e.partialResult(ctx, feedId, domain.TriggerJoin, -1, atBlock, encrypted,
				fmt.Errorf("member %s has no profile to encrypt for: %w", addr, err))
		}
		if len(profile.PublicEncryptionKey) == 0 {
			return Result{}, e.partialResult(ctx, feedId, domain.TriggerJoin, -1, atBlock, encrypted,
				fmt.Errorf("member %s has no public encryption key", addr))
		}
		wrapped, err := e.crypto.EncryptWithPublicKey(symKey, profile.PublicEncryptionKey)
		if err != nil {
			return Result{}, e.partialResult(ctx, feedId, domain.TriggerJoin, -1, atBlock, encrypted,
				fmt.Errorf("wrapping key for member %s: %w", addr, err))
		}
		encrypted[addr] = wrapped
	}

	generation := domain.KeyGeneration{
		FeedId:         feedId,
		Generation:     0,
		ValidFromBlock: atBlock,
		Trigger:        domain.TriggerJoin,
		EncryptedKeys:  encrypted,
	}
	if err := e.generations.Create(ctx, generation); err != nil {
		return Result{}, apierrors.Wrap(apierrors.KindInternal, "persisting initial key generation", err)
	}
	return Result{Generation: generation}, nil
}

// partialResult is called when a failure occurs after generation number
// allocation has already been decided (step 5 onward): per step 9, the
// membership change is not rolled back, so the caller reports a
// partial-failure status rather than a hard error.
func (e *Engine) partialResult(ctx context.Context, feedId domain.FeedId, trigger domain.RotationTrigger,
	latest int, atBlock domain.BlockIndex, encrypted map[domain.Address][]byte, cause error) error {
	e.log.Error().Err(cause).Str("feedId", feedId.String()).Int("generation", latest+1).
		Msg("key rotation failed after membership mutation; member may be undecryptable until next rotation")
	return apierrors.Wrap(apierrors.KindPartialFailure, "member added but key distribution failed; will retry on next rotation", cause)
}

func membershipEvent(trigger domain.RotationTrigger, feedId domain.FeedId, delta MembershipDelta) events.Event {
	switch trigger {
	case domain.TriggerJoin:
		return events.Event{Kind: events.KindUserJoinedGroup, FeedId: feedId, Address: delta.Added}
	case domain.TriggerLeave:
		return events.Event{Kind: events.KindUserLeftGroup, FeedId: feedId, Address: delta.Removed}
	case domain.TriggerBan:
		return events.Event{Kind: events.KindUserBannedFromGroup, FeedId: feedId, Address: delta.Removed}
	case domain.TriggerUnban:
		return events.Event{Kind: events.KindUserJoinedGroup, FeedId: feedId, Address: delta.Added}
	default:
		return events.Event{Kind: events.KindUserJoinedGroup, FeedId: feedId}
	}
}

// MembershipDelta describes the join/leave change already decided by the
// caller before Rotate recomputes the member set (§4.5 step 2).
type MembershipDelta struct {
	Added   domain.Address
	Removed domain.Address
}

func (d MembershipDelta) apply(active []domain.Address) []domain.Address {
	out := make([]domain.Address, 0, len(active)+1)
	for _, a := range active {
		if d.Removed != "" && a == d.Removed {
			continue
		}
		out = append(out, a)
	}
	if d.Added != "" {
		found := false
		for _, a := range out {
			if a == d.Added {
				found = true
				break
			}
		}
		if !found {
			out = append(out, d.Added)
		}
	}
	return out
}
