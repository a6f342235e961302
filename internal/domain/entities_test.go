package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedParticipantActiveAt(t *testing.T) {
	t.Parallel()

	left := BlockIndex(100)

	type testCase struct {
		name   string
		p      FeedParticipant
		at     BlockIndex
		active bool
	}

	tests := []testCase{
		{
			name:   "joined before, never left",
			p:      FeedParticipant{Role: RoleMember, JoinedAtBlock: 10},
			at:     50,
			active: true,
		},
		{
			name:   "not yet joined",
			p:      FeedParticipant{Role: RoleMember, JoinedAtBlock: 60},
			at:     50,
			active: false,
		},
		{
			name:   "left before query block",
			p:      FeedParticipant{Role: RoleMember, JoinedAtBlock: 10, LeftAtBlock: &left},
			at:     150,
			active: false,
		},
		{
			name:   "left exactly at query block",
			p:      FeedParticipant{Role: RoleMember, JoinedAtBlock: 10, LeftAtBlock: &left},
			at:     100,
			active: false,
		},
		{
			name:   "left after query block",
			p:      FeedParticipant{Role: RoleMember, JoinedAtBlock: 10, LeftAtBlock: &left},
			at:     99,
			active: true,
		},
		{
			name:   "banned is never active",
			p:      FeedParticipant{Role: RoleBanned, JoinedAtBlock: 10},
			at:     50,
			active: false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.active, tc.p.ActiveAt(tc.at))
		})
	}
}

func TestEffectiveBlockIndexTakesMax(t *testing.T) {
	t.Parallel()

	feed := Feed{
		BlockIndex: 10,
		Participants: []FeedParticipant{
			{Address: "0xaaa"},
			{Address: "0xbbb"},
		},
	}

	got := EffectiveBlockIndex(feed, map[Address]BlockIndex{
		"0xaaa": 25,
		"0xbbb": 15,
	})
	require.Equal(t, BlockIndex(25), got)
}

func TestEffectiveBlockIndexFallsBackToFeedBlock(t *testing.T) {
	t.Parallel()

	feed := Feed{BlockIndex: 42}
	got := EffectiveBlockIndex(feed, map[Address]BlockIndex{})
	require.Equal(t, BlockIndex(42), got)
}
