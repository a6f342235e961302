package rotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/events"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

var alice = domain.Address("0xalice")
var bob = domain.Address("0xbob")

type fakeProfiles struct {
	byAddress map[domain.Address]domain.Profile
}

func (f *fakeProfiles) Get(_ context.Context, address domain.Address) (domain.Profile, error) {
	p, ok := f.byAddress[address]
	if !ok {
		return domain.Profile{}, errors.New("not found")
	}
	return p, nil
}

type fakeFeeds struct {
	mu          sync.Mutex
	active      map[domain.FeedId][]domain.Address
	blockBumped domain.BlockIndex
}

func (f *fakeFeeds) ActiveMembers(_ context.Context, feedId domain.FeedId) ([]domain.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Address{}, f.active[feedId]...), nil
}

func (f *fakeFeeds) BumpBlockIndex(_ context.Context, _ domain.FeedId, atBlock domain.BlockIndex) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockBumped = atBlock
	return nil
}

type fakeGenerations struct {
	mu      sync.Mutex
	latest  map[domain.FeedId]int
	created []domain.KeyGeneration
}

func (f *fakeGenerations) LatestGeneration(_ context.Context, feedId domain.FeedId) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.latest[feedId]
	if !ok {
		return -1, nil
	}
	return g, nil
}

func (f *fakeGenerations) Create(_ context.Context, g domain.KeyGeneration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, g)
	f.latest[g.FeedId] = int(g.Generation)
	return nil
}

type fakeCrypto struct {
	failFor domain.Address
}

func (c *fakeCrypto) GenerateSymmetricKey() ([]byte, error) { return []byte("symmetric-key-material"), nil }

func (c *fakeCrypto) EncryptWithPublicKey(plaintext, pubkey []byte) ([]byte, error) {
	return append([]byte("wrapped:"), plaintext...), nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func newTestEngine(t *testing.T) (*Engine, *fakeFeeds, *fakeGenerations, *fakeBus, domain.FeedId) {
	t.Helper()
	feedId, err := domain.NewFeedId()
	require.NoError(t, err)

	profiles := &fakeProfiles{byAddress: map[domain.Address]domain.Profile{
		alice: {Address: alice, PublicEncryptionKey: []byte("alice-pub")},
		bob:   {Address: bob, PublicEncryptionKey: []byte("bob-pub")},
	}}
	feeds := &fakeFeeds{active: map[domain.FeedId][]domain.Address{feedId: {alice}}}
	generations := &fakeGenerations{latest: map[domain.FeedId]int{feedId: 0}}
	bus := &fakeBus{}

	engine := New(profiles, feeds, generations, &fakeCrypto{}, bus, zerolog.Nop())
	return engine, feeds, generations, bus, feedId
}

func TestRotateOnJoinAddsMemberAndAllocatesNextGeneration(t *testing.T) {
	t.Parallel()

	engine, _, generations, bus, feedId := newTestEngine(t)

	result, err := engine.Rotate(context.Background(), feedId, domain.TriggerJoin,
		MembershipDelta{Added: bob}, 50)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Generation.Generation)
	require.Contains(t, result.Generation.EncryptedKeys, alice)
	require.Contains(t, result.Generation.EncryptedKeys, bob)
	require.Len(t, generations.created, 1)

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.published) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRotateOnBanExcludesTargetFromNewGeneration(t *testing.T) {
	t.Parallel()

	engine, feeds, _, _, feedId := newTestEngine(t)
	feeds.active[feedId] = []domain.Address{alice, bob}

	result, err := engine.Rotate(context.Background(), feedId, domain.TriggerBan,
		MembershipDelta{Removed: bob}, 200)
	require.NoError(t, err)
	require.Contains(t, result.Generation.EncryptedKeys, alice)
	require.NotContains(t, result.Generation.EncryptedKeys, bob)
}

func TestRotateFailsWhenResultingGroupIsEmpty(t *testing.T) {
	t.Parallel()

	engine, _, _, _, feedId := newTestEngine(t)

	_, err := engine.Rotate(context.Background(), feedId, domain.TriggerLeave,
		MembershipDelta{Removed: alice}, 10)
	require.Error(t, err)
	require.Equal(t, apierrors.KindValidationFailed, apierrors.KindOf(err))
}

func TestRotateFailsWhenFeedHasNoGenerationHistory(t *testing.T) {
	t.Parallel()

	engine, _, generations, _, feedId := newTestEngine(t)
	delete(generations.latest, feedId)

	_, err := engine.Rotate(context.Background(), feedId, domain.TriggerJoin,
		MembershipDelta{Added: bob}, 10)
	require.Error(t, err)
	require.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestRotateReportsPartialFailureWhenMemberHasNoProfile(t *testing.T) {
	t.Parallel()

	engine, _, generations, _, feedId := newTestEngine(t)

	_, err := engine.Rotate(context.Background(), feedId, domain.TriggerJoin,
		MembershipDelta{Added: domain.Address("0xghost")}, 10)
	require.Error(t, err)
	require.Equal(t, apierrors.KindPartialFailure, apierrors.KindOf(err))
	// The generation number was not consumed: no Create call happened.
	require.Len(t, generations.created, 0)
}

func TestRotateSerializesConcurrentCallsPerFeed(t *testing.T) {
	t.Parallel()

	engine, feeds, generations, _, feedId := newTestEngine(t)
	feeds.active[feedId] = []domain.Address{alice}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.Rotate(context.Background(), feedId, domain.TriggerJoin,
				MembershipDelta{Added: bob}, 10)
		}()
	}
	wg.Wait()

	generations.mu.Lock()
	defer generations.mu.Unlock()
	seen := map[domain.Generation]bool{}
	for _, g := range generations.created {
		require.False(t, seen[g.Generation], "generation numbers must be dense and unique under concurrency")
		seen[g.Generation] = true
	}
}

func TestBootstrapCreatesGenerationZeroForEveryInitialMember(t *testing.T) {
	t.Parallel()

	engine, _, generations, _, feedId := newTestEngine(t)
	delete(generations.latest, feedId) // no feed exists yet

	result, err := engine.Bootstrap(context.Background(), feedId, []domain.Address{alice, bob}, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, result.Generation.Generation)
	require.Contains(t, result.Generation.EncryptedKeys, alice)
	require.Contains(t, result.Generation.EncryptedKeys, bob)
	require.Len(t, generations.created, 1)
}

func TestBootstrapRejectsEmptyMemberSet(t *testing.T) {
	t.Parallel()

	engine, _, _, _, feedId := newTestEngine(t)

	_, err := engine.Bootstrap(context.Background(), feedId, nil, 1)
	require.Error(t, err)
	require.Equal(t, apierrors.KindValidationFailed, apierrors.KindOf(err))
}

func TestCanRejoinEnforcesCooldown(t *testing.T) {
	t.Parallel()

	left := domain.BlockIndex(100)
	require.False(t, CanRejoin(&left, 150))
	require.True(t, CanRejoin(&left, 200))
	require.True(t, CanRejoin(nil, 0))
}
