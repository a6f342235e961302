package rotation

import "github.com/hushnetwork/node-cache/internal/domain"

// CanRejoin reports whether a user who left a feed at lastLeaveBlock may
// rejoin at now, per the RejoinCooldownBlocks cooldown. A nil
// lastLeaveBlock (never left, or never a member) always permits joining.
func CanRejoin(lastLeaveBlock *domain.BlockIndex, now domain.BlockIndex) bool {
	if lastLeaveBlock == nil {
		return true
	}
	return now >= *lastLeaveBlock+RejoinCooldownBlocks
}
