package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedIdRoundTrip(t *testing.T) {
	t.Parallel()

	id, err := NewFeedId()
	require.NoError(t, err)

	text, err := id.MarshalText()
	require.NoError(t, err)

	var decoded FeedId
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, id, decoded)
}

func TestMessageIdRoundTrip(t *testing.T) {
	t.Parallel()

	id, err := NewMessageId()
	require.NoError(t, err)

	parsed, err := ParseMessageId(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseFeedIdRejectsBadLength(t *testing.T) {
	t.Parallel()

	_, err := ParseFeedId("0xdeadbeef")
	require.Error(t, err)
}

func TestParseFeedIdAcceptsWithAndWithoutPrefix(t *testing.T) {
	t.Parallel()

	id, err := NewFeedId()
	require.NoError(t, err)

	withPrefix := id.String()
	require.Contains(t, withPrefix, "0x")

	stripped := withPrefix[2:]
	parsed, err := ParseFeedId(stripped)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}
