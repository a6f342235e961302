package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/facade"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

type fakeOrchestrator struct {
	hasPersonalFeed bool
	feeds           []facade.FeedSummary
	joinErr         error
	createFeedId    domain.FeedId
	createErr       error
	deleteErr       error
}

func (f *fakeOrchestrator) HasPersonalFeed(context.Context, domain.Address) (bool, error) {
	return f.hasPersonalFeed, nil
}
func (f *fakeOrchestrator) IsFeedInBlockchain(context.Context, domain.FeedId) (bool, error) {
	return true, nil
}
func (f *fakeOrchestrator) GetFeeds(context.Context, domain.Address) ([]facade.FeedSummary, error) {
	return f.feeds, nil
}
func (f *fakeOrchestrator) GetFeedMessages(context.Context, domain.Address, *domain.BlockIndex, uint64) (facade.GetFeedMessagesResult, error) {
	return facade.GetFeedMessagesResult{}, nil
}
func (f *fakeOrchestrator) GetMessageById(context.Context, domain.MessageId) (domain.FeedMessage, error) {
	return domain.FeedMessage{}, apierrors.New(apierrors.KindNotFound, "no such message")
}
func (f *fakeOrchestrator) GetGroupMembers(context.Context, domain.FeedId) ([]participants.Member, error) {
	return nil, nil
}
func (f *fakeOrchestrator) GetKeyGenerations(context.Context, domain.FeedId, domain.Address) ([]facade.KeyGenerationView, error) {
	return nil, nil
}
func (f *fakeOrchestrator) CreateGroupFeed(context.Context, domain.Address, string, string, []domain.Address) (domain.FeedId, error) {
	return f.createFeedId, f.createErr
}
func (f *fakeOrchestrator) JoinGroupFeed(context.Context, domain.FeedId, domain.Address) error {
	return f.joinErr
}
func (f *fakeOrchestrator) LeaveGroupFeed(context.Context, domain.FeedId, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) AddMemberToGroupFeed(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) BanFromGroupFeed(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) UnbanFromGroupFeed(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) BlockMember(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) UnblockMember(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) PromoteToAdmin(context.Context, domain.FeedId, domain.Address, domain.Address) error {
	return nil
}
func (f *fakeOrchestrator) UpdateGroupFeedTitle(context.Context, domain.FeedId, domain.Address, string) error {
	return nil
}
func (f *fakeOrchestrator) UpdateGroupFeedDescription(context.Context, domain.FeedId, domain.Address, string) error {
	return nil
}
func (f *fakeOrchestrator) DeleteGroupFeed(context.Context, domain.FeedId, domain.Address) error {
	return f.deleteErr
}

func TestHasPersonalFeed(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{hasPersonalFeed: true})
	resp, err := rs.HasPersonalFeed(context.Background(), HasPersonalFeedRequest{Address: "0xalice"})
	require.NoError(t, err)
	require.True(t, resp.HasPersonalFeed)
}

func TestGetFeedsForAddressMapsParticipants(t *testing.T) {
	t.Parallel()

	feedId, err := domain.NewFeedId()
	require.NoError(t, err)
	left := domain.BlockIndex(40)

	fake := &fakeOrchestrator{feeds: []facade.FeedSummary{{
		FeedId:              feedId,
		Type:                domain.FeedTypeGroup,
		Title:               "Friends",
		EffectiveBlockIndex: 50,
		Participants: []domain.FeedParticipant{
			{Address: "0xalice", Role: domain.RoleOwner, JoinedAtBlock: 10},
			{Address: "0xbob", Role: domain.RoleMember, JoinedAtBlock: 20, LeftAtBlock: &left},
		},
	}}}
	rs := NewRPCService(fake)

	resp, err := rs.GetFeedsForAddress(context.Background(), GetFeedsForAddressRequest{Address: "0xalice"})
	require.NoError(t, err)
	require.Len(t, resp.Feeds, 1)
	require.Equal(t, feedId.String(), resp.Feeds[0].FeedID)
	require.Len(t, resp.Feeds[0].Participants, 2)
	require.Nil(t, resp.Feeds[0].Participants[0].LeftAtBlock)
	require.NotNil(t, resp.Feeds[0].Participants[1].LeftAtBlock)
	require.EqualValues(t, 40, *resp.Feeds[0].Participants[1].LeftAtBlock)
}

func TestGetMessageByIdReportsNotFoundWithoutError(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{})
	resp, err := rs.GetMessageById(context.Background(), GetMessageByIdRequest{MessageID: mustMessageId(t).String()})
	require.NoError(t, err)
	require.False(t, resp.Found)
}

func TestJoinGroupFeedEnvelopesValidationFailure(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{joinErr: apierrors.New(apierrors.KindValidationFailed, "already a member")})
	resp, err := rs.JoinGroupFeed(context.Background(), FeedAddressRequest{FeedID: mustFeedId(t).String(), Address: "0xalice"})
	require.NoError(t, err, "mutating RPCs never surface expected failures as transport errors")
	require.False(t, resp.Success)
	require.Equal(t, "already a member", resp.Message)
}

func TestUpdateGroupFeedTitleRejectsOverlongTitle(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{})
	overlong := make([]byte, 101)
	for i := range overlong {
		overlong[i] = 'a'
	}
	resp, err := rs.UpdateGroupFeedTitle(context.Background(), UpdateGroupFeedTitleRequest{
		FeedID:       mustFeedId(t).String(),
		AdminAddress: "0xalice",
		NewValue:     string(overlong),
	})
	require.NoError(t, err)
	require.False(t, resp.Success)
}

func TestUpdateGroupFeedDescriptionRejectsOverlongDescription(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{})
	overlong := make([]byte, 501)
	for i := range overlong {
		overlong[i] = 'a'
	}
	resp, err := rs.UpdateGroupFeedDescription(context.Background(), UpdateGroupFeedDescriptionRequest{
		FeedID:       mustFeedId(t).String(),
		AdminAddress: "0xalice",
		NewValue:     string(overlong),
	})
	require.NoError(t, err)
	require.False(t, resp.Success)
}

func TestDeleteGroupFeedEnvelopesOwnerOnlyFailure(t *testing.T) {
	t.Parallel()

	rs := NewRPCService(&fakeOrchestrator{deleteErr: apierrors.New(apierrors.KindUnauthorized, "only the owner can delete this feed")})
	resp, err := rs.DeleteGroupFeed(context.Background(), DeleteGroupFeedRequest{
		FeedID:       mustFeedId(t).String(),
		OwnerAddress: "0xbob",
	})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, "only the owner can delete this feed", resp.Message)
}

func mustFeedId(t *testing.T) domain.FeedId {
	t.Helper()
	id, err := domain.NewFeedId()
	require.NoError(t, err)
	return id
}

func mustMessageId(t *testing.T) domain.MessageId {
	t.Helper()
	id, err := domain.NewMessageId()
	require.NoError(t, err)
	return id
}
