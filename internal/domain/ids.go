// Package domain holds the entities and value types shared by every layer
// of the caching subsystem: profiles, feeds, participants, messages, key
// generations, read positions, reaction tallies and device tokens.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// BlockIndex is the blockchain's monotonic logical clock.
type BlockIndex uint64

// Generation labels a symmetric-key epoch for a group feed. Generations
// start at 0 and are dense: a group's valid generations are [0..N].
type Generation uint32

// Address is a participant's printable identifier, derived from their public
// signing key. It is always lowercase and 0x-prefixed.
type Address string

// FeedId is a 128-bit opaque feed identifier.
type FeedId [16]byte

// MessageId is a 128-bit opaque message identifier.
type MessageId [16]byte

// NewFeedId generates a random FeedId.
func NewFeedId() (FeedId, error) {
	var id FeedId
	if _, err := rand.Read(id[:]); err != nil {
		return FeedId{}, fmt.Errorf("generating feed id: %w", err)
	}
	return id, nil
}

// NewMessageId generates a random MessageId.
func NewMessageId() (MessageId, error) {
	var id MessageId
	if _, err := rand.Read(id[:]); err != nil {
		return MessageId{}, fmt.Errorf("generating message id: %w", err)
	}
	return id, nil
}

// String renders the id as a 0x-prefixed hex string.
func (f FeedId) String() string { return "0x" + hex.EncodeToString(f[:]) }

// String renders the id as a 0x-prefixed hex string.
func (m MessageId) String() string { return "0x" + hex.EncodeToString(m[:]) }

// MarshalText implements encoding.TextMarshaler so FeedId round-trips
// identically through JSON payloads and Redis set members.
func (f FeedId) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FeedId) UnmarshalText(text []byte) error {
	id, err := ParseFeedId(string(text))
	if err != nil {
		return err
	}
	*f = id
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m MessageId) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MessageId) UnmarshalText(text []byte) error {
	id, err := ParseMessageId(string(text))
	if err != nil {
		return err
	}
	*m = id
	return nil
}

// ParseFeedId parses a 0x-prefixed 32-hex-char string into a FeedId.
func ParseFeedId(s string) (FeedId, error) {
	var id FeedId
	b, err := decode16(s)
	if err != nil {
		return id, fmt.Errorf("parsing feed id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// ParseMessageId parses a 0x-prefixed 32-hex-char string into a MessageId.
func ParseMessageId(s string) (MessageId, error) {
	var id MessageId
	b, err := decode16(s)
	if err != nil {
		return id, fmt.Errorf("parsing message id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

func decode16(s string) ([]byte, error) {
	if len(s) == 34 && s[:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 16 {
		return nil, errors.New("expected 16 bytes")
	}
	return b, nil
}
