package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/cache/projections/feedmetadata"
	"github.com/hushnetwork/node-cache/internal/cache/projections/identity"
	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/cache/projections/reactiontally"
	"github.com/hushnetwork/node-cache/internal/domain"
)

var testFeedId = mustFeedId()

func mustFeedId() domain.FeedId {
	id, err := domain.NewFeedId()
	if err != nil {
		panic(err)
	}
	return id
}

// fakeStore is a minimal hand-written fake covering every KV operation the
// four projections wired into Invalidators need.
type fakeStore struct {
	mu     sync.Mutex
	blobs  map[string]string
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blobs:  map[string]string{},
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]struct{}{},
	}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[key], nil
}

func (f *fakeStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = value
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.blobs, k)
		delete(f.hashes, k)
		delete(f.sets, k)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sets[key]; ok {
		return true, nil
	}
	_, ok := f.blobs[key]
	return ok, nil
}

func (f *fakeStore) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeStore) HGet(_ context.Context, key, field string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[key][field], nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HMGet(_ context.Context, key string, fields ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, field := range fields {
		if v, ok := f.hashes[key][field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	for k, v := range fields {
		f.hashes[key][k] = v
	}
	return nil
}

func (f *fakeStore) HDel(_ context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return nil
}

func (f *fakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

// testDeps bundles the fake narrow dependencies Invalidators needs beyond the
// four projections, so individual tests can seed feed membership and
// profile lookups without reaching into store internals.
type testDeps struct {
	mu       sync.Mutex
	feeds    map[domain.Address][]domain.FeedId
	members  map[domain.FeedId][]domain.Address
	profiles map[domain.Address]domain.Profile
	title    string
}

func newTestInvalidators(t *testing.T, store *fakeStore) (*Invalidators, *identity.Service, *participants.Service, *feedmetadata.Service, *reactiontally.Service, *testDeps) {
	t.Helper()

	identitySvc := identity.New(store, "", zerolog.Nop())
	participantsSvc := participants.New(store, "", zerolog.Nop())
	feedMetadataSvc := feedmetadata.New(store, "", zerolog.Nop())
	talliesSvc := reactiontally.New(store, "", zerolog.Nop())

	deps := &testDeps{
		feeds:    map[domain.Address][]domain.FeedId{},
		members:  map[domain.FeedId][]domain.Address{},
		profiles: map[domain.Address]domain.Profile{},
		title:    "renamed title",
	}

	feedsOf := func(_ context.Context, address domain.Address) ([]domain.FeedId, error) {
		deps.mu.Lock()
		defer deps.mu.Unlock()
		return deps.feeds[address], nil
	}
	membersOf := func(_ context.Context, feedId domain.FeedId) ([]domain.Address, error) {
		deps.mu.Lock()
		defer deps.mu.Unlock()
		return deps.members[feedId], nil
	}
	resolveTitle := func(_ context.Context, _ domain.Address, _ domain.FeedId) (string, error) {
		deps.mu.Lock()
		defer deps.mu.Unlock()
		return deps.title, nil
	}
	resolveProfile := func(_ context.Context, address domain.Address) (domain.Profile, error) {
		deps.mu.Lock()
		defer deps.mu.Unlock()
		p, ok := deps.profiles[address]
		if !ok {
			return domain.Profile{}, errTestProfileNotFound
		}
		return p, nil
	}

	inv := NewInvalidators(identitySvc, participantsSvc, feedMetadataSvc, talliesSvc, feedsOf, membersOf, resolveTitle, resolveProfile, zerolog.Nop())
	return inv, identitySvc, participantsSvc, feedMetadataSvc, talliesSvc, deps
}

var errTestProfileNotFound = errors.New("profile not found")

func TestOnIdentityUpdatedCascadesTitleToFeedMembers(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, identitySvc, participantsSvc, feedMetadataSvc, _, deps := newTestInvalidators(t, store)

	alice := domain.Address("0xalice")
	bob := domain.Address("0xbob")
	feedId := testFeedId

	deps.feeds[bob] = []domain.FeedId{feedId}
	deps.members[feedId] = []domain.Address{alice, bob}
	deps.profiles[bob] = domain.Profile{Address: bob, Alias: "Robert"}
	deps.title = "Robert"

	aliceEntry := feedmetadata.Entry{
		Title:          "Bob",
		Type:           domain.FeedTypeChat,
		LastBlockIndex: 7,
		Participants:   []domain.FeedParticipant{{Address: alice}, {Address: bob}},
		CreatedAtBlock: 3,
	}
	feedMetadataSvc.SetOne(context.Background(), alice, feedId, aliceEntry)
	participantsSvc.SetEnrichedMembers(context.Background(), feedId, participants.MembersBundle{Members: []participants.Member{{Address: alice}, {Address: bob}}})

	inv.onIdentityUpdated(context.Background(), Event{Kind: KindIdentityUpdated, Address: bob})

	_, ok := participantsSvc.GetEnrichedMembers(context.Background(), feedId)
	require.False(t, ok, "enriched-member cache must be invalidated on identity update")

	entries, ok := feedMetadataSvc.GetAll(context.Background(), alice)
	require.True(t, ok)
	require.Equal(t, "Robert", entries[feedId].Title, "Alice's cached view of Bob's feed must show Bob's new alias")
	require.Equal(t, aliceEntry.Type, entries[feedId].Type, "title-only update must not clobber the entry's other fields")
	require.Equal(t, aliceEntry.LastBlockIndex, entries[feedId].LastBlockIndex)
	require.Equal(t, aliceEntry.Participants, entries[feedId].Participants)
	require.Equal(t, aliceEntry.CreatedAtBlock, entries[feedId].CreatedAtBlock)

	names := identitySvc.GetDisplayNames(context.Background(), []domain.Address{bob})
	require.Equal(t, "Robert", names[bob], "renamed alias must propagate into the global display-name hash")
}

func TestOnIdentityUpdatedSkipsDisplayNameWhenProfileUnresolvable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, identitySvc, _, _, _, deps := newTestInvalidators(t, store)

	addr := domain.Address("0xghost")
	deps.feeds[addr] = nil

	inv.onIdentityUpdated(context.Background(), Event{Kind: KindIdentityUpdated, Address: addr})

	names := identitySvc.GetDisplayNames(context.Background(), []domain.Address{addr})
	require.Empty(t, names[addr])
}

func TestOnUserJoinedGroupUpdatesParticipantsAndInvalidates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, _, participantsSvc, _, _, _ := newTestInvalidators(t, store)

	feedId := testFeedId
	addr := domain.Address("0xbob")

	participantsSvc.SetMembers(context.Background(), feedId, []domain.Address{domain.Address("0xalice")})
	participantsSvc.SetKeyGenerations(context.Background(), feedId, participants.KeyGenerationsBundle{KeyGenerations: []participants.KeyGenerationEntry{{Version: 1}}})
	participantsSvc.SetEnrichedMembers(context.Background(), feedId, participants.MembersBundle{})

	inv.onUserJoinedGroup(context.Background(), Event{Kind: KindUserJoinedGroup, FeedId: feedId, Address: addr})

	members, ok := participantsSvc.GetMembers(context.Background(), feedId)
	require.True(t, ok)
	require.Contains(t, members, addr)

	_, ok = participantsSvc.GetKeyGenerations(context.Background(), feedId)
	require.False(t, ok)

	_, ok = participantsSvc.GetEnrichedMembers(context.Background(), feedId)
	require.False(t, ok)
}

func TestOnUserLeftGroupRemovesMember(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, _, participantsSvc, _, _, _ := newTestInvalidators(t, store)

	feedId := testFeedId
	addr := domain.Address("0xbob")

	participantsSvc.SetMembers(context.Background(), feedId, []domain.Address{addr})

	inv.onUserLeftGroup(context.Background(), Event{Kind: KindUserLeftGroup, FeedId: feedId, Address: addr})

	members, ok := participantsSvc.GetMembers(context.Background(), feedId)
	require.True(t, ok)
	require.NotContains(t, members, addr)
}

func TestOnGroupTitleChangedUpdatesEveryMember(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, _, _, feedMetadataSvc, _, deps := newTestInvalidators(t, store)

	feedId := testFeedId
	alice := domain.Address("0xalice")
	bob := domain.Address("0xbob")

	deps.members[feedId] = []domain.Address{alice, bob}
	feedMetadataSvc.SetOne(context.Background(), alice, feedId, feedmetadata.Entry{
		Title: "old", Type: domain.FeedTypeGroup, LastBlockIndex: 4, Participants: []domain.FeedParticipant{{Address: alice}},
	})
	feedMetadataSvc.SetOne(context.Background(), bob, feedId, feedmetadata.Entry{
		Title: "old", Type: domain.FeedTypeGroup, LastBlockIndex: 4, Participants: []domain.FeedParticipant{{Address: bob}},
	})

	inv.onGroupTitleChanged(context.Background(), Event{Kind: KindGroupTitleChanged, FeedId: feedId, NewTitle: "new title"})

	aliceEntries, ok := feedMetadataSvc.GetAll(context.Background(), alice)
	require.True(t, ok)
	require.Equal(t, "new title", aliceEntries[feedId].Title)
	require.EqualValues(t, 4, aliceEntries[feedId].LastBlockIndex, "title-only update must preserve the rest of the entry")

	bobEntries, ok := feedMetadataSvc.GetAll(context.Background(), bob)
	require.True(t, ok)
	require.Equal(t, "new title", bobEntries[feedId].Title)
}

func TestOnMessageReactedUpsertsTally(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	inv, _, _, _, talliesSvc, _ := newTestInvalidators(t, store)

	feedId := testFeedId
	var messageId domain.MessageId

	inv.onMessageReacted(context.Background(), Event{
		Kind:      KindMessageReacted,
		FeedId:    feedId,
		MessageId: messageId,
		Tally:     domain.ReactionTally{Version: 1},
	})

	tallies, ok := talliesSvc.GetSince(context.Background(), feedId, 0)
	require.True(t, ok)
	require.Len(t, tallies, 1)
	require.Equal(t, uint64(1), tallies[0].Version)
}
