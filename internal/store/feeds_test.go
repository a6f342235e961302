package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/store"
)

func mustNewFeedId(t *testing.T) domain.FeedId {
	t.Helper()
	id, err := domain.NewFeedId()
	require.NoError(t, err)
	return id
}

func TestFeedRepoCreateAndGetFeed(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	f := domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup, Title: "Friends", BlockIndex: 5}
	require.NoError(t, repo.CreateFeed(ctx, f, 5))

	got, err := repo.GetFeed(ctx, feedId)
	require.NoError(t, err)
	require.Equal(t, feedId, got.FeedId)
	require.Equal(t, domain.FeedTypeGroup, got.Type)
	require.Equal(t, "Friends", got.Title)
	require.EqualValues(t, 5, got.BlockIndex)
}

func TestFeedRepoGetFeedMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)

	_, err := repo.GetFeed(context.Background(), mustNewFeedId(t))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFeedRepoParticipantLifecycle(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	require.NoError(t, repo.CreateFeed(ctx, domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup, Title: "G"}, 1))

	require.NoError(t, repo.AddParticipant(ctx, domain.FeedParticipant{
		FeedId: feedId, Address: "0xalice", Role: domain.RoleOwner, JoinedAtBlock: 1,
	}))
	require.NoError(t, repo.AddParticipant(ctx, domain.FeedParticipant{
		FeedId: feedId, Address: "0xbob", Role: domain.RoleMember, JoinedAtBlock: 2,
	}))

	active, err := repo.ActiveMembers(ctx, feedId)
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.Address{"0xalice", "0xbob"}, active)

	require.NoError(t, repo.SetLeftAtBlock(ctx, feedId, "0xbob", 10))

	active, err = repo.ActiveMembers(ctx, feedId)
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.Address{"0xalice"}, active)

	participants, err := repo.GetParticipants(ctx, feedId)
	require.NoError(t, err)
	require.Len(t, participants, 2)

	require.NoError(t, repo.SetRole(ctx, feedId, "0xalice", domain.RoleAdmin))
	participants, err = repo.GetParticipants(ctx, feedId)
	require.NoError(t, err)
	for _, p := range participants {
		if p.Address == "0xalice" {
			require.Equal(t, domain.RoleAdmin, p.Role)
		}
	}
}

func TestFeedRepoBumpBlockIndexNeverMovesBackwards(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	require.NoError(t, repo.CreateFeed(ctx, domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup, BlockIndex: 10}, 10))

	require.NoError(t, repo.BumpBlockIndex(ctx, feedId, 5))
	got, err := repo.GetFeed(ctx, feedId)
	require.NoError(t, err)
	require.EqualValues(t, 10, got.BlockIndex, "bump to a lower block must be a no-op")

	require.NoError(t, repo.BumpBlockIndex(ctx, feedId, 20))
	got, err = repo.GetFeed(ctx, feedId)
	require.NoError(t, err)
	require.EqualValues(t, 20, got.BlockIndex)
}

func TestFeedRepoFeedsForAddressExcludesDepartedMembers(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	require.NoError(t, repo.CreateFeed(ctx, domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup}, 1))
	require.NoError(t, repo.AddParticipant(ctx, domain.FeedParticipant{
		FeedId: feedId, Address: "0xdave", Role: domain.RoleMember, JoinedAtBlock: 1,
	}))

	feeds, err := repo.FeedsForAddress(ctx, "0xdave")
	require.NoError(t, err)
	require.Contains(t, feeds, feedId)

	require.NoError(t, repo.SetLeftAtBlock(ctx, feedId, "0xdave", 2))

	feeds, err = repo.FeedsForAddress(ctx, "0xdave")
	require.NoError(t, err)
	require.NotContains(t, feeds, feedId)
}

func TestFeedRepoUpdateDescription(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	require.NoError(t, repo.CreateFeed(ctx, domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup}, 1))

	require.NoError(t, repo.UpdateDescription(ctx, feedId, "a cozy group", 5))
	got, err := repo.GetFeed(ctx, feedId)
	require.NoError(t, err)
	require.Equal(t, "a cozy group", got.Description)
	require.EqualValues(t, 5, got.BlockIndex)
}

func TestFeedRepoSoftDeleteExcludesFeedFromMembershipQueries(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewFeedRepo(txn)
	ctx := context.Background()

	feedId := mustNewFeedId(t)
	require.NoError(t, repo.CreateFeed(ctx, domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup}, 1))
	require.NoError(t, repo.AddParticipant(ctx, domain.FeedParticipant{
		FeedId: feedId, Address: "0xerin", Role: domain.RoleOwner, JoinedAtBlock: 1,
	}))

	require.NoError(t, repo.SoftDelete(ctx, feedId, 9))

	got, err := repo.GetFeed(ctx, feedId)
	require.NoError(t, err, "soft-deleted feeds are still readable by id")
	require.True(t, got.IsDeleted())
	require.NotNil(t, got.DeletedAtBlock)
	require.EqualValues(t, 9, *got.DeletedAtBlock)

	feeds, err := repo.FeedsForAddress(ctx, "0xerin")
	require.NoError(t, err)
	require.NotContains(t, feeds, feedId)

	active, err := repo.ActiveMembers(ctx, feedId)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, repo.SoftDelete(ctx, feedId, 99), "soft-deleting an already-deleted feed is a no-op")
	got, err = repo.GetFeed(ctx, feedId)
	require.NoError(t, err)
	require.EqualValues(t, 9, *got.DeletedAtBlock, "deleted_at_block must not be overwritten by a second delete")
}
