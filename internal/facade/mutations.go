package facade

import (
	"context"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/events"
	"github.com/hushnetwork/node-cache/internal/rotation"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

// mutateInTxn runs fn inside a new store transaction, committing on success
// or on a partial-failure result (the membership/generation state it wrote
// is still authoritative — §4.5 step 9 — only a genuine error rolls back).
func (s *Service) mutateInTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.txn.Begin(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindBackendUnavailable, "starting transaction", err)
	}
	err := fn(ctx)
	if err != nil && apierrors.KindOf(err) != apierrors.KindPartialFailure {
		if rbErr := s.txn.Rollback(ctx); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("rollback failed after mutation error")
		}
		return err
	}
	if cErr := s.txn.Commit(ctx); cErr != nil {
		return apierrors.Wrap(apierrors.KindBackendUnavailable, "committing transaction", cErr)
	}
	return err
}

func (s *Service) currentBlock(ctx context.Context) (domain.BlockIndex, error) {
	bi, err := s.clock.CurrentBlockIndex(ctx)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.KindBackendUnavailable, "reading blockchain clock", err)
	}
	return bi, nil
}

// latestParticipantRow finds the most recently joined row for address in
// rows (a feed's full, possibly-multi-row-per-address, participant
// history), since a rejoin creates a fresh row rather than reopening the
// old one.
func latestParticipantRow(rows []domain.FeedParticipant, address domain.Address) (domain.FeedParticipant, bool) {
	var latest domain.FeedParticipant
	found := false
	for _, p := range rows {
		if p.Address != address {
			continue
		}
		if !found || p.JoinedAtBlock >= latest.JoinedAtBlock {
			latest = p
			found = true
		}
	}
	return latest, found
}

func isActive(p domain.FeedParticipant, ok bool) bool {
	return ok && p.LeftAtBlock == nil && p.Role != domain.RoleBanned
}

func (s *Service) requireAdmin(rows []domain.FeedParticipant, actor domain.Address) error {
	row, ok := latestParticipantRow(rows, actor)
	if !isActive(row, ok) || (row.Role != domain.RoleAdmin && row.Role != domain.RoleOwner) {
		return apierrors.New(apierrors.KindUnauthorized, "actor is not an admin of this feed")
	}
	return nil
}

// CreateGroupFeed creates a new group feed with creator as its Owner, plus
// any initialMembers as Members, and bootstraps generation 0.
func (s *Service) CreateGroupFeed(ctx context.Context, creator domain.Address, title, description string, initialMembers []domain.Address) (domain.FeedId, error) {
	feedId, err := domain.NewFeedId()
	if err != nil {
		return domain.FeedId{}, apierrors.Wrap(apierrors.KindInternal, "generating feed id", err)
	}
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return domain.FeedId{}, err
	}

	members := append([]domain.Address{creator}, initialMembers...)

	err = s.mutateInTxn(ctx, func(ctx context.Context) error {
		f := domain.Feed{FeedId: feedId, Type: domain.FeedTypeGroup, Title: title, Description: description, BlockIndex: atBlock}
		if err := s.feeds.CreateFeed(ctx, f, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "creating feed", err)
		}
		if err := s.feeds.AddParticipant(ctx, domain.FeedParticipant{FeedId: feedId, Address: creator, Role: domain.RoleOwner, JoinedAtBlock: atBlock}); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "adding owner", err)
		}
		for _, m := range initialMembers {
			if err := s.feeds.AddParticipant(ctx, domain.FeedParticipant{FeedId: feedId, Address: m, Role: domain.RoleMember, JoinedAtBlock: atBlock}); err != nil {
				return apierrors.Wrap(apierrors.KindInternal, "adding initial member", err)
			}
		}
		if _, err := s.rotation.Bootstrap(ctx, feedId, members, atBlock); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.FeedId{}, err
	}

	s.userFeeds.Add(ctx, creator, feedId)
	for _, m := range initialMembers {
		s.userFeeds.Add(ctx, m, feedId)
	}
	return feedId, nil
}

// JoinGroupFeed adds address as a Member of feedId: first join (Absent),
// or a rejoin (Left) once the rejoin cooldown has elapsed.
func (s *Service) JoinGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		row, ok := latestParticipantRow(rows, address)
		if isActive(row, ok) {
			return apierrors.New(apierrors.KindValidationFailed, "already a member of this feed")
		}
		if ok && row.Role == domain.RoleBanned {
			return apierrors.New(apierrors.KindValidationFailed, "banned from this feed")
		}
		if ok && row.LeftAtBlock != nil && !rotation.CanRejoin(row.LastLeaveBlock, atBlock) {
			return apierrors.New(apierrors.KindValidationFailed, "rejoin cooldown has not elapsed")
		}

		if err := s.feeds.AddParticipant(ctx, domain.FeedParticipant{FeedId: feedId, Address: address, Role: domain.RoleMember, JoinedAtBlock: atBlock}); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "adding participant", err)
		}
		if _, err := s.rotation.Rotate(ctx, feedId, domain.TriggerJoin, rotation.MembershipDelta{Added: address}, atBlock); err != nil {
			return err
		}
		s.userFeeds.Add(ctx, address, feedId)
		return nil
	})
}

// LeaveGroupFeed removes address from feedId. An Owner may only leave once
// another admin exists to take over the feed.
func (s *Service) LeaveGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		row, ok := latestParticipantRow(rows, address)
		if !isActive(row, ok) {
			return apierrors.New(apierrors.KindValidationFailed, "not a member of this feed")
		}
		if row.Role == domain.RoleOwner && !anotherAdminExists(rows, address) {
			return apierrors.New(apierrors.KindValidationFailed, "owner cannot leave without another admin in the feed")
		}

		if err := s.feeds.SetLeftAtBlock(ctx, feedId, address, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "closing participant row", err)
		}
		if _, err := s.rotation.Rotate(ctx, feedId, domain.TriggerLeave, rotation.MembershipDelta{Removed: address}, atBlock); err != nil {
			return err
		}
		s.userFeeds.Remove(ctx, address, feedId)
		return nil
	})
}

func anotherAdminExists(rows []domain.FeedParticipant, exclude domain.Address) bool {
	seen := map[domain.Address]domain.FeedParticipant{}
	for _, p := range rows {
		if existing, ok := seen[p.Address]; !ok || p.JoinedAtBlock >= existing.JoinedAtBlock {
			seen[p.Address] = p
		}
	}
	for addr, p := range seen {
		if addr == exclude {
			continue
		}
		if isActive(p, true) && (p.Role == domain.RoleAdmin || p.Role == domain.RoleOwner) {
			return true
		}
	}
	return false
}

// AddMemberToGroupFeed lets an admin/owner add target as a Member.
func (s *Service) AddMemberToGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		if row, ok := latestParticipantRow(rows, target); isActive(row, ok) {
			return apierrors.New(apierrors.KindValidationFailed, "target is already a member")
		}

		if err := s.feeds.AddParticipant(ctx, domain.FeedParticipant{FeedId: feedId, Address: target, Role: domain.RoleMember, JoinedAtBlock: atBlock}); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "adding participant", err)
		}
		if _, err := s.rotation.Rotate(ctx, feedId, domain.TriggerJoin, rotation.MembershipDelta{Added: target}, atBlock); err != nil {
			return err
		}
		s.userFeeds.Add(ctx, target, feedId)
		return nil
	})
}

// BanFromGroupFeed lets an admin/owner permanently exclude target: the
// generation is rotated immediately so a banned member cannot decrypt any
// further messages.
func (s *Service) BanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		row, ok := latestParticipantRow(rows, target)
		if !isActive(row, ok) {
			return apierrors.New(apierrors.KindValidationFailed, "target is not a member of this feed")
		}
		if row.Role == domain.RoleOwner {
			return apierrors.New(apierrors.KindValidationFailed, "cannot ban the owner")
		}

		// SetRole only updates the open row, so the role is written before
		// the row is closed.
		if err := s.feeds.SetRole(ctx, feedId, target, domain.RoleBanned); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "marking participant banned", err)
		}
		if err := s.feeds.SetLeftAtBlock(ctx, feedId, target, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "closing participant row", err)
		}
		if _, err := s.rotation.Rotate(ctx, feedId, domain.TriggerBan, rotation.MembershipDelta{Removed: target}, atBlock); err != nil {
			return err
		}
		s.userFeeds.Remove(ctx, target, feedId)
		return nil
	})
}

// UnbanFromGroupFeed lets an admin/owner readmit a previously banned
// target as a fresh Member, bypassing the ordinary rejoin cooldown since
// this is an explicit admin decision rather than a self-service rejoin.
func (s *Service) UnbanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		row, ok := latestParticipantRow(rows, target)
		if !ok || row.Role != domain.RoleBanned {
			return apierrors.New(apierrors.KindValidationFailed, "target is not banned from this feed")
		}

		if err := s.feeds.AddParticipant(ctx, domain.FeedParticipant{FeedId: feedId, Address: target, Role: domain.RoleMember, JoinedAtBlock: atBlock}); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "adding participant", err)
		}
		if _, err := s.rotation.Rotate(ctx, feedId, domain.TriggerUnban, rotation.MembershipDelta{Added: target}, atBlock); err != nil {
			return err
		}
		s.userFeeds.Add(ctx, target, feedId)
		return nil
	})
}

// BlockMember mutes target at the application layer without removing them
// from the encryption group: no rotation, since the group's key material is
// unaffected by a block.
func (s *Service) BlockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		row, ok := latestParticipantRow(rows, target)
		if !isActive(row, ok) {
			return apierrors.New(apierrors.KindValidationFailed, "target is not a member of this feed")
		}
		if err := s.feeds.SetRole(ctx, feedId, target, domain.RoleBlocked); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "marking participant blocked", err)
		}
		s.participants.InvalidateEnrichedMembers(ctx, feedId)
		return nil
	})
}

// UnblockMember restores target to Member, the inverse of BlockMember.
func (s *Service) UnblockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		row, ok := latestParticipantRow(rows, target)
		if !ok || row.LeftAtBlock != nil || row.Role != domain.RoleBlocked {
			return apierrors.New(apierrors.KindValidationFailed, "target is not blocked in this feed")
		}
		if err := s.feeds.SetRole(ctx, feedId, target, domain.RoleMember); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "marking participant unblocked", err)
		}
		s.participants.InvalidateEnrichedMembers(ctx, feedId)
		return nil
	})
}

// PromoteToAdmin lets an owner/admin raise a Member to Admin. Role changes
// that do not alter the active-member set never trigger a rotation.
func (s *Service) PromoteToAdmin(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		row, ok := latestParticipantRow(rows, target)
		if !isActive(row, ok) || row.Role != domain.RoleMember {
			return apierrors.New(apierrors.KindValidationFailed, "target must be an active member to promote")
		}
		if err := s.feeds.SetRole(ctx, feedId, target, domain.RoleAdmin); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "promoting participant", err)
		}
		s.participants.InvalidateEnrichedMembers(ctx, feedId)
		return nil
	})
}

// UpdateGroupFeedTitle lets an admin/owner rename the feed, fanning the new
// title out to every member's cached feed-metadata entry.
func (s *Service) UpdateGroupFeedTitle(ctx context.Context, feedId domain.FeedId, actor domain.Address, title string) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		if err := s.feeds.UpdateTitle(ctx, feedId, title, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "updating feed title", err)
		}
		s.bus.Publish(ctx, events.Event{Kind: events.KindGroupTitleChanged, FeedId: feedId, NewTitle: title})
		return nil
	})
}

// UpdateGroupFeedDescription lets an admin/owner update the feed's
// description, mirroring UpdateGroupFeedTitle. The description does not
// feed into the per-viewer title cascade, so no cache fan-out is needed
// beyond the store write.
func (s *Service) UpdateGroupFeedDescription(ctx context.Context, feedId domain.FeedId, actor domain.Address, description string) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	return s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		if err := s.requireAdmin(rows, actor); err != nil {
			return err
		}
		if err := s.feeds.UpdateDescription(ctx, feedId, description, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "updating feed description", err)
		}
		return nil
	})
}

// DeleteGroupFeed lets the owner soft-delete a group feed: its row and
// message history are kept (feeds are never destroyed), but it stops
// surfacing from FeedsForAddress/ActiveMembers and is dropped from every
// active member's cached feed set and feed-metadata entry.
func (s *Service) DeleteGroupFeed(ctx context.Context, feedId domain.FeedId, ownerAddress domain.Address) error {
	atBlock, err := s.currentBlock(ctx)
	if err != nil {
		return err
	}

	var activeMembers []domain.Address
	err = s.mutateInTxn(ctx, func(ctx context.Context) error {
		rows, err := s.feeds.GetParticipants(ctx, feedId)
		if err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "loading participants", err)
		}
		row, ok := latestParticipantRow(rows, ownerAddress)
		if !isActive(row, ok) || row.Role != domain.RoleOwner {
			return apierrors.New(apierrors.KindUnauthorized, "only the owner can delete this feed")
		}
		if err := s.feeds.SoftDelete(ctx, feedId, atBlock); err != nil {
			return apierrors.Wrap(apierrors.KindInternal, "soft-deleting feed", err)
		}
		seen := map[domain.Address]domain.FeedParticipant{}
		for _, p := range rows {
			if existing, ok := seen[p.Address]; !ok || p.JoinedAtBlock >= existing.JoinedAtBlock {
				seen[p.Address] = p
			}
		}
		for addr, p := range seen {
			if isActive(p, true) {
				activeMembers = append(activeMembers, addr)
			}
		}
		s.participants.InvalidateEnrichedMembers(ctx, feedId)
		s.participants.InvalidateKeyGenerations(ctx, feedId)
		return nil
	})
	if err != nil {
		return err
	}

	for _, addr := range activeMembers {
		s.userFeeds.Remove(ctx, addr, feedId)
		s.feedMetadata.Remove(ctx, addr, feedId)
	}
	return nil
}
