package domain

import "time"

// FeedType enumerates the kinds of feeds a participant can observe.
type FeedType string

// Feed types.
const (
	FeedTypePersonal  FeedType = "personal"
	FeedTypeChat      FeedType = "chat"
	FeedTypeGroup     FeedType = "group"
	FeedTypeBroadcast FeedType = "broadcast"
)

// ParticipantRole enumerates the roles a FeedParticipant can hold in a feed.
type ParticipantRole string

// Participant roles.
const (
	RoleOwner   ParticipantRole = "owner"
	RoleAdmin   ParticipantRole = "admin"
	RoleMember  ParticipantRole = "member"
	RoleBlocked ParticipantRole = "blocked"
	// RoleBanned is not a role attribute stored directly in most rows (a
	// banned member's row is simply excluded from ActiveGroupMembers via
	// leftAtBlock), but rotation bookkeeping and tests refer to it as a
	// distinct rotation trigger, so it is modeled here too.
	RoleBanned ParticipantRole = "banned"
)

// RotationTrigger names the membership change that caused a key rotation.
type RotationTrigger string

// Rotation triggers.
const (
	TriggerJoin   RotationTrigger = "join"
	TriggerLeave  RotationTrigger = "leave"
	TriggerBan    RotationTrigger = "ban"
	TriggerUnban  RotationTrigger = "unban"
)

// Profile is a participant's registered identity.
type Profile struct {
	Address             Address
	Alias               string
	ShortAlias          string
	PublicEncryptionKey []byte
	IsPublic            bool
	BlockIndex          BlockIndex
}

// Feed is an ordered, append-only sequence of messages.
type Feed struct {
	FeedId       FeedId
	Type         FeedType
	Title        string
	Description  string
	BlockIndex   BlockIndex
	Participants []FeedParticipant
	DeletedAtBlock *BlockIndex
}

// IsDeleted reports whether the feed has been soft-deleted.
func (f Feed) IsDeleted() bool { return f.DeletedAtBlock != nil }

// FeedParticipant is one member's relationship to a feed.
type FeedParticipant struct {
	FeedId            FeedId
	Address           Address
	Role              ParticipantRole
	JoinedAtBlock     BlockIndex
	LeftAtBlock       *BlockIndex
	LastLeaveBlock    *BlockIndex
	EncryptedFeedKey  []byte
}

// ActiveAt reports whether the participant is active in the feed at block b,
// joined at or before b, and either never left or
// left strictly after b, and not banned.
func (p FeedParticipant) ActiveAt(b BlockIndex) bool {
	if p.Role == RoleBanned {
		return false
	}
	if p.JoinedAtBlock > b {
		return false
	}
	if p.LeftAtBlock != nil && *p.LeftAtBlock <= b {
		return false
	}
	return true
}

// FeedMessage is one immutable, finalized message in a feed.
type FeedMessage struct {
	MessageId        MessageId
	FeedId           FeedId
	Content          []byte
	IssuerAddress    Address
	BlockIndex       BlockIndex
	Timestamp        time.Time
	KeyGeneration    *Generation
	ReplyToId        *MessageId
	AuthorCommitment []byte
}

// KeyGeneration is one symmetric-key epoch for a group feed.
type KeyGeneration struct {
	FeedId         FeedId
	Generation     Generation
	ValidFromBlock BlockIndex
	ValidToBlock   *BlockIndex
	Trigger        RotationTrigger
	EncryptedKeys  map[Address][]byte
}

// ReadPosition is a (user, feed) read watermark.
type ReadPosition struct {
	Address           Address
	FeedId            FeedId
	LastReadBlockIndex BlockIndex
	UpdatedAt          time.Time
}

// ReactionTally is a homomorphic aggregate of reactions for a message.
type ReactionTally struct {
	MessageId  MessageId
	Version    uint64
	TotalCount uint64
	TallyC1    [6][]byte
	TallyC2    [6][]byte
}

// DeviceToken is a push-notification registration for one device.
type DeviceToken struct {
	TokenId    string
	Address    Address
	Platform   string
	Token      string
	DeviceName string
	CreatedAt  time.Time
	LastUsedAt time.Time
	IsActive   bool
}

// EffectiveBlockIndex computes max(feed.blockIndex, max(profile.blockIndex))
// across the feed's participants' profiles. The
// caller supplies the resolved profile block indices keyed by address since
// this package has no store dependency.
func EffectiveBlockIndex(feed Feed, participantBlockIndices map[Address]BlockIndex) BlockIndex {
	max := feed.BlockIndex
	for _, p := range feed.Participants {
		if bi, ok := participantBlockIndices[p.Address]; ok && bi > max {
			max = bi
		}
	}
	return max
}
