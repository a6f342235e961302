package facade

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
)

var alice = domain.Address("0xalice")
var bob = domain.Address("0xbob")

func block(b domain.BlockIndex) *domain.BlockIndex { return &b }

func TestLatestParticipantRowPicksMostRecentJoin(t *testing.T) {
	t.Parallel()

	rows := []domain.FeedParticipant{
		{Address: alice, JoinedAtBlock: 10, LeftAtBlock: block(50)},
		{Address: alice, JoinedAtBlock: 200, Role: domain.RoleMember},
		{Address: bob, JoinedAtBlock: 5},
	}

	row, ok := latestParticipantRow(rows, alice)
	require.True(t, ok)
	require.EqualValues(t, 200, row.JoinedAtBlock)
	require.Nil(t, row.LeftAtBlock)
}

func TestLatestParticipantRowMissForUnknownAddress(t *testing.T) {
	t.Parallel()

	_, ok := latestParticipantRow(nil, alice)
	require.False(t, ok)
}

func TestIsActiveExcludesLeftAndBanned(t *testing.T) {
	t.Parallel()

	require.True(t, isActive(domain.FeedParticipant{Role: domain.RoleMember}, true))
	require.False(t, isActive(domain.FeedParticipant{Role: domain.RoleMember}, false))
	require.False(t, isActive(domain.FeedParticipant{Role: domain.RoleMember, LeftAtBlock: block(10)}, true))
	require.False(t, isActive(domain.FeedParticipant{Role: domain.RoleBanned}, true))
}

func TestAnotherAdminExistsIgnoresExcludedAddressAndInactiveRows(t *testing.T) {
	t.Parallel()

	rows := []domain.FeedParticipant{
		{Address: alice, JoinedAtBlock: 1, Role: domain.RoleOwner},
		{Address: bob, JoinedAtBlock: 2, Role: domain.RoleAdmin, LeftAtBlock: block(20)},
	}
	require.False(t, anotherAdminExists(rows, alice), "the only other admin has already left")

	rows = append(rows, domain.FeedParticipant{Address: domain.Address("0xcarol"), JoinedAtBlock: 3, Role: domain.RoleAdmin})
	require.True(t, anotherAdminExists(rows, alice))
}

func TestOtherParticipantFindsTheNonViewerInAChatFeed(t *testing.T) {
	t.Parallel()

	feed := domain.Feed{Participants: []domain.FeedParticipant{
		{Address: alice}, {Address: bob},
	}}

	other, ok := otherParticipant(feed, alice)
	require.True(t, ok)
	require.Equal(t, bob, other)

	_, ok = otherParticipant(domain.Feed{}, alice)
	require.False(t, ok)
}
