// Package transport exposes the Read-Through Orchestrator over JSON-RPC,
// the same wire style the teacher serves its mesa service through: a single
// registered object whose exported methods become RPC methods, dispatched
// by go-ethereum's reflection-based rpc.Server.
package transport

import (
	"context"
	"fmt"

	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/facade"
	"github.com/hushnetwork/node-cache/pkg/apierrors"
)

// orchestrator is the subset of *facade.Instrumented the RPC layer calls
// into. Kept narrow so this package can be tested against a fake without
// pulling in every cache/store dependency facade.Service carries.
type orchestrator interface {
	HasPersonalFeed(ctx context.Context, address domain.Address) (bool, error)
	IsFeedInBlockchain(ctx context.Context, feedId domain.FeedId) (bool, error)
	GetFeeds(ctx context.Context, address domain.Address) ([]facade.FeedSummary, error)
	GetFeedMessages(ctx context.Context, address domain.Address, sinceBlock *domain.BlockIndex, sinceTallyVersion uint64) (facade.GetFeedMessagesResult, error)
	GetMessageById(ctx context.Context, messageId domain.MessageId) (domain.FeedMessage, error)
	GetGroupMembers(ctx context.Context, feedId domain.FeedId) ([]participants.Member, error)
	GetKeyGenerations(ctx context.Context, feedId domain.FeedId, requester domain.Address) ([]facade.KeyGenerationView, error)
	CreateGroupFeed(ctx context.Context, creator domain.Address, title, description string, initialMembers []domain.Address) (domain.FeedId, error)
	JoinGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error
	LeaveGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error
	AddMemberToGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	BanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	UnbanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	BlockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	UnblockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	PromoteToAdmin(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error
	UpdateGroupFeedTitle(ctx context.Context, feedId domain.FeedId, actor domain.Address, title string) error
	UpdateGroupFeedDescription(ctx context.Context, feedId domain.FeedId, actor domain.Address, description string) error
	DeleteGroupFeed(ctx context.Context, feedId domain.FeedId, ownerAddress domain.Address) error
}

// RPCService is the registered JSON-RPC object. Every method takes one
// request struct and returns one response struct (or an error, surfaced by
// go-ethereum's rpc.Server as a JSON-RPC error object), matching the
// teacher's RPCService shape.
type RPCService struct {
	svc orchestrator
}

// NewRPCService wraps svc for JSON-RPC dispatch.
func NewRPCService(svc orchestrator) *RPCService {
	return &RPCService{svc: svc}
}

// HasPersonalFeedRequest is a HasPersonalFeed request.
type HasPersonalFeedRequest struct {
	Address string `json:"address"`
}

// HasPersonalFeedResponse is a HasPersonalFeed response.
type HasPersonalFeedResponse struct {
	HasPersonalFeed bool `json:"hasPersonalFeed"`
}

// HasPersonalFeed reports whether the caller's address already owns a
// Personal feed.
func (rs *RPCService) HasPersonalFeed(ctx context.Context, req HasPersonalFeedRequest) (HasPersonalFeedResponse, error) {
	ok, err := rs.svc.HasPersonalFeed(ctx, domain.Address(req.Address))
	if err != nil {
		return HasPersonalFeedResponse{}, fmt.Errorf("calling HasPersonalFeed: %w", err)
	}
	return HasPersonalFeedResponse{HasPersonalFeed: ok}, nil
}

// IsFeedInBlockchainRequest is an IsFeedInBlockchain request.
type IsFeedInBlockchainRequest struct {
	FeedID string `json:"feedId"`
}

// IsFeedInBlockchainResponse is an IsFeedInBlockchain response.
type IsFeedInBlockchainResponse struct {
	Exists bool `json:"exists"`
}

// IsFeedInBlockchain reports whether feedId has ever been committed.
func (rs *RPCService) IsFeedInBlockchain(ctx context.Context, req IsFeedInBlockchainRequest) (IsFeedInBlockchainResponse, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return IsFeedInBlockchainResponse{}, fmt.Errorf("parsing feed id: %w", err)
	}
	exists, err := rs.svc.IsFeedInBlockchain(ctx, feedId)
	if err != nil {
		return IsFeedInBlockchainResponse{}, fmt.Errorf("calling IsFeedInBlockchain: %w", err)
	}
	return IsFeedInBlockchainResponse{Exists: exists}, nil
}

// ParticipantDTO is one feed participant as exposed over the wire.
type ParticipantDTO struct {
	Address       string  `json:"address"`
	Role          string  `json:"role"`
	JoinedAtBlock uint64  `json:"joinedAtBlock"`
	LeftAtBlock   *uint64 `json:"leftAtBlock,omitempty"`
}

// FeedDTO is one feed entry of GetFeedsForAddress's response.
type FeedDTO struct {
	FeedID              string           `json:"feedId"`
	Title               string           `json:"title"`
	Type                string           `json:"type"`
	EffectiveBlockIndex uint64           `json:"effectiveBlockIndex"`
	Participants        []ParticipantDTO `json:"participants"`
}

// GetFeedsForAddressRequest is a GetFeedsForAddress request. SinceBlock is
// accepted for wire compatibility but unused: feed enumeration is always
// "all my feeds" (see the source's GetFeedMessagesForAddress note on
// enumeration-vs-filtering).
type GetFeedsForAddressRequest struct {
	Address    string `json:"address"`
	SinceBlock uint64 `json:"sinceBlock"`
}

// GetFeedsForAddressResponse is a GetFeedsForAddress response.
type GetFeedsForAddressResponse struct {
	Feeds []FeedDTO `json:"feeds"`
}

// GetFeedsForAddress returns every feed the caller participates in.
func (rs *RPCService) GetFeedsForAddress(ctx context.Context, req GetFeedsForAddressRequest) (GetFeedsForAddressResponse, error) {
	summaries, err := rs.svc.GetFeeds(ctx, domain.Address(req.Address))
	if err != nil {
		return GetFeedsForAddressResponse{}, fmt.Errorf("calling GetFeedsForAddress: %w", err)
	}
	out := make([]FeedDTO, len(summaries))
	for i, s := range summaries {
		participants := make([]ParticipantDTO, len(s.Participants))
		for j, p := range s.Participants {
			dto := ParticipantDTO{
				Address:       string(p.Address),
				Role:          string(p.Role),
				JoinedAtBlock: uint64(p.JoinedAtBlock),
			}
			if p.LeftAtBlock != nil {
				b := uint64(*p.LeftAtBlock)
				dto.LeftAtBlock = &b
			}
			participants[j] = dto
		}
		out[i] = FeedDTO{
			FeedID:              s.FeedId.String(),
			Title:               s.Title,
			Type:                string(s.Type),
			EffectiveBlockIndex: uint64(s.EffectiveBlockIndex),
			Participants:        participants,
		}
	}
	return GetFeedsForAddressResponse{Feeds: out}, nil
}

// MessageDTO is one message as exposed over the wire.
type MessageDTO struct {
	MessageID     string  `json:"messageId"`
	FeedID        string  `json:"feedId"`
	Content       []byte  `json:"content"`
	IssuerAddress string  `json:"issuerAddress"`
	BlockIndex    uint64  `json:"blockIndex"`
	KeyGeneration *uint32 `json:"keyGeneration,omitempty"`
}

// ReactionTallyDTO is one reaction tally as exposed over the wire: a
// homomorphically aggregated, still-encrypted count per reaction slot, plus
// the unencrypted running total used for cheap "N reactions" display.
type ReactionTallyDTO struct {
	MessageID  string   `json:"messageId"`
	TotalCount uint64   `json:"totalCount"`
	TallyC1    [][]byte `json:"tallyC1"`
	TallyC2    [][]byte `json:"tallyC2"`
	Version    uint64   `json:"version"`
}

// GetFeedMessagesForAddressRequest is a GetFeedMessagesForAddress request.
type GetFeedMessagesForAddressRequest struct {
	Address           string  `json:"address"`
	SinceBlock        *uint64 `json:"sinceBlock,omitempty"`
	SinceTallyVersion uint64  `json:"sinceTallyVersion"`
}

// GetFeedMessagesForAddressResponse is a GetFeedMessagesForAddress response.
type GetFeedMessagesForAddressResponse struct {
	Messages          []MessageDTO        `json:"messages"`
	ReactionTallies    []ReactionTallyDTO  `json:"reactionTallies"`
	MaxTallyVersion   uint64              `json:"maxTallyVersion"`
	DisplayNames      map[string]string   `json:"displayNames"`
}

// GetFeedMessagesForAddress returns new messages and reaction tallies across
// every feed the caller participates in.
func (rs *RPCService) GetFeedMessagesForAddress(ctx context.Context, req GetFeedMessagesForAddressRequest) (GetFeedMessagesForAddressResponse, error) {
	var sinceBlock *domain.BlockIndex
	if req.SinceBlock != nil {
		b := domain.BlockIndex(*req.SinceBlock)
		sinceBlock = &b
	}

	result, err := rs.svc.GetFeedMessages(ctx, domain.Address(req.Address), sinceBlock, req.SinceTallyVersion)
	if err != nil {
		return GetFeedMessagesForAddressResponse{}, fmt.Errorf("calling GetFeedMessagesForAddress: %w", err)
	}

	resp := GetFeedMessagesForAddressResponse{
		MaxTallyVersion: result.MaxTallyVersion,
		DisplayNames:    make(map[string]string, len(result.DisplayNamesByAddr)),
	}
	for _, fm := range result.Feeds {
		for _, m := range fm.Messages {
			resp.Messages = append(resp.Messages, messageToDTO(m))
		}
	}
	for _, t := range result.Tallies {
		resp.ReactionTallies = append(resp.ReactionTallies, ReactionTallyDTO{
			MessageID:  t.MessageId.String(),
			TotalCount: t.TotalCount,
			TallyC1:    t.TallyC1[:],
			TallyC2:    t.TallyC2[:],
			Version:    t.Version,
		})
	}
	for addr, name := range result.DisplayNamesByAddr {
		resp.DisplayNames[string(addr)] = name
	}
	return resp, nil
}

func messageToDTO(m domain.FeedMessage) MessageDTO {
	dto := MessageDTO{
		MessageID:     m.MessageId.String(),
		FeedID:        m.FeedId.String(),
		Content:       m.Content,
		IssuerAddress: string(m.IssuerAddress),
		BlockIndex:    uint64(m.BlockIndex),
	}
	if m.KeyGeneration != nil {
		g := uint32(*m.KeyGeneration)
		dto.KeyGeneration = &g
	}
	return dto
}

// GetMessageByIdRequest is a GetMessageById request.
type GetMessageByIdRequest struct {
	MessageID string `json:"messageId"`
}

// GetMessageByIdResponse is a GetMessageById response.
type GetMessageByIdResponse struct {
	Found   bool       `json:"found"`
	Message MessageDTO `json:"message,omitempty"`
}

// GetMessageById fetches a single message by id.
func (rs *RPCService) GetMessageById(ctx context.Context, req GetMessageByIdRequest) (GetMessageByIdResponse, error) {
	messageId, err := domain.ParseMessageId(req.MessageID)
	if err != nil {
		return GetMessageByIdResponse{}, fmt.Errorf("parsing message id: %w", err)
	}
	m, err := rs.svc.GetMessageById(ctx, messageId)
	if err != nil {
		if apierrors.KindOf(err) == apierrors.KindNotFound {
			return GetMessageByIdResponse{Found: false}, nil
		}
		return GetMessageByIdResponse{}, fmt.Errorf("calling GetMessageById: %w", err)
	}
	return GetMessageByIdResponse{Found: true, Message: messageToDTO(m)}, nil
}

// MemberDTO is one group member as exposed over the wire.
type MemberDTO struct {
	Address       string  `json:"address"`
	Role          string  `json:"role"`
	JoinedAtBlock uint64  `json:"joinedAtBlock"`
	LeftAtBlock   *uint64 `json:"leftAtBlock,omitempty"`
	DisplayName   string  `json:"displayName"`
}

// GetGroupMembersRequest is a GetGroupMembers request.
type GetGroupMembersRequest struct {
	FeedID string `json:"feedId"`
}

// GetGroupMembersResponse is a GetGroupMembers response.
type GetGroupMembersResponse struct {
	Members []MemberDTO `json:"members"`
}

// GetGroupMembers lists a group feed's enriched membership.
func (rs *RPCService) GetGroupMembers(ctx context.Context, req GetGroupMembersRequest) (GetGroupMembersResponse, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return GetGroupMembersResponse{}, fmt.Errorf("parsing feed id: %w", err)
	}
	members, err := rs.svc.GetGroupMembers(ctx, feedId)
	if err != nil {
		return GetGroupMembersResponse{}, fmt.Errorf("calling GetGroupMembers: %w", err)
	}
	out := make([]MemberDTO, len(members))
	for i, m := range members {
		dto := MemberDTO{
			Address:       string(m.Address),
			Role:          string(m.Role),
			JoinedAtBlock: uint64(m.JoinedAtBlock),
			DisplayName:   m.DisplayName,
		}
		if m.LeftAtBlock != nil {
			b := uint64(*m.LeftAtBlock)
			dto.LeftAtBlock = &b
		}
		out[i] = dto
	}
	return GetGroupMembersResponse{Members: out}, nil
}

// KeyGenerationDTO is one key generation as exposed to its requester.
type KeyGenerationDTO struct {
	Generation           uint32 `json:"generation"`
	EncryptedKeyForRequester []byte `json:"encryptedKeyForRequester"`
	ValidFromBlock       uint64 `json:"validFromBlock"`
}

// GetKeyGenerationsRequest is a GetKeyGenerations request.
type GetKeyGenerationsRequest struct {
	FeedID           string `json:"feedId"`
	RequesterAddress string `json:"requesterAddress"`
}

// GetKeyGenerationsResponse is a GetKeyGenerations response.
type GetKeyGenerationsResponse struct {
	KeyGenerations []KeyGenerationDTO `json:"keyGenerations"`
}

// GetKeyGenerations lists the requester's own wrapped key per generation.
func (rs *RPCService) GetKeyGenerations(ctx context.Context, req GetKeyGenerationsRequest) (GetKeyGenerationsResponse, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return GetKeyGenerationsResponse{}, fmt.Errorf("parsing feed id: %w", err)
	}
	views, err := rs.svc.GetKeyGenerations(ctx, feedId, domain.Address(req.RequesterAddress))
	if err != nil {
		return GetKeyGenerationsResponse{}, fmt.Errorf("calling GetKeyGenerations: %w", err)
	}
	out := make([]KeyGenerationDTO, len(views))
	for i, v := range views {
		out[i] = KeyGenerationDTO{
			Generation:               uint32(v.Version),
			EncryptedKeyForRequester: v.EncryptedKey,
			ValidFromBlock:           uint64(v.ValidFromBlock),
		}
	}
	return GetKeyGenerationsResponse{KeyGenerations: out}, nil
}

// CreateGroupFeedRequest is a CreateGroupFeed request. Participants are
// plain addresses, with no per-participant role or key; every initial
// participant besides the creator is added as a plain Member (see
// DESIGN.md). IsPublic is accepted but not used.
type CreateGroupFeedRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	IsPublic     bool     `json:"isPublic"`
	Creator      string   `json:"creator"`
	Participants []string `json:"participants"`
}

// CreateGroupFeedResponse is a CreateGroupFeed response.
type CreateGroupFeedResponse struct {
	apierrors.ServiceError
	FeedID string `json:"feedId,omitempty"`
}

// CreateGroupFeed creates a new group feed.
func (rs *RPCService) CreateGroupFeed(ctx context.Context, req CreateGroupFeedRequest) (CreateGroupFeedResponse, error) {
	members := make([]domain.Address, len(req.Participants))
	for i, p := range req.Participants {
		members[i] = domain.Address(p)
	}
	feedId, err := rs.svc.CreateGroupFeed(ctx, domain.Address(req.Creator), req.Title, req.Description, members)
	if err != nil {
		return CreateGroupFeedResponse{ServiceError: apierrors.Envelope(err)}, nil
	}
	return CreateGroupFeedResponse{ServiceError: apierrors.Envelope(nil), FeedID: feedId.String()}, nil
}

// FeedAddressRequest is the common shape for JoinGroupFeed/LeaveGroupFeed.
type FeedAddressRequest struct {
	FeedID  string `json:"feedId"`
	Address string `json:"address"`
}

// JoinGroupFeed adds the caller as a Member of a group feed.
func (rs *RPCService) JoinGroupFeed(ctx context.Context, req FeedAddressRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.JoinGroupFeed(ctx, feedId, domain.Address(req.Address))), nil
}

// LeaveGroupFeed removes the caller from a group feed.
func (rs *RPCService) LeaveGroupFeed(ctx context.Context, req FeedAddressRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.LeaveGroupFeed(ctx, feedId, domain.Address(req.Address))), nil
}

// FeedActorTargetRequest is the common shape for every admin-gated
// two-party membership mutation (AddMember, Ban/Unban, Block/Unblock,
// PromoteToAdmin).
type FeedActorTargetRequest struct {
	FeedID               string `json:"feedId"`
	AdminAddress         string `json:"adminAddress"`
	TargetAddress        string `json:"targetAddress"`
	NewMemberEncryptKey  []byte `json:"newMemberEncryptKey,omitempty"`
}

// AddMemberToGroupFeed lets an admin/owner add a new member.
func (rs *RPCService) AddMemberToGroupFeed(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.AddMemberToGroupFeed(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// BanFromGroupFeed lets an admin/owner permanently exclude a member.
func (rs *RPCService) BanFromGroupFeed(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.BanFromGroupFeed(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// UnbanFromGroupFeed lets an admin/owner readmit a previously banned member.
func (rs *RPCService) UnbanFromGroupFeed(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.UnbanFromGroupFeed(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// BlockMember lets an admin/owner mute a member at the application layer.
func (rs *RPCService) BlockMember(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.BlockMember(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// UnblockMember is the inverse of BlockMember.
func (rs *RPCService) UnblockMember(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.UnblockMember(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// PromoteToAdmin lets an owner/admin raise a Member to Admin.
func (rs *RPCService) PromoteToAdmin(ctx context.Context, req FeedActorTargetRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.PromoteToAdmin(ctx, feedId, domain.Address(req.AdminAddress), domain.Address(req.TargetAddress))), nil
}

// UpdateGroupFeedTitleRequest is an UpdateGroupFeedTitle request.
type UpdateGroupFeedTitleRequest struct {
	FeedID       string `json:"feedId"`
	AdminAddress string `json:"adminAddress"`
	NewValue     string `json:"newValue"`
}

// UpdateGroupFeedTitle lets an admin/owner rename a group feed.
func (rs *RPCService) UpdateGroupFeedTitle(ctx context.Context, req UpdateGroupFeedTitleRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	if len(req.NewValue) > 100 {
		return apierrors.Envelope(apierrors.New(apierrors.KindValidationFailed, "title must be at most 100 characters")), nil
	}
	return apierrors.Envelope(rs.svc.UpdateGroupFeedTitle(ctx, feedId, domain.Address(req.AdminAddress), req.NewValue)), nil
}

// UpdateGroupFeedDescriptionRequest is an UpdateGroupFeedDescription
// request.
type UpdateGroupFeedDescriptionRequest struct {
	FeedID       string `json:"feedId"`
	AdminAddress string `json:"adminAddress"`
	NewValue     string `json:"newValue"`
}

// UpdateGroupFeedDescription lets an admin/owner update a group feed's
// description.
func (rs *RPCService) UpdateGroupFeedDescription(ctx context.Context, req UpdateGroupFeedDescriptionRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	if len(req.NewValue) > 500 {
		return apierrors.Envelope(apierrors.New(apierrors.KindValidationFailed, "description must be at most 500 characters")), nil
	}
	return apierrors.Envelope(rs.svc.UpdateGroupFeedDescription(ctx, feedId, domain.Address(req.AdminAddress), req.NewValue)), nil
}

// DeleteGroupFeedRequest is a DeleteGroupFeed request.
type DeleteGroupFeedRequest struct {
	FeedID       string `json:"feedId"`
	OwnerAddress string `json:"ownerAddress"`
}

// DeleteGroupFeed lets the owner soft-delete a group feed: the row and its
// message history survive, but the feed stops surfacing for its members.
func (rs *RPCService) DeleteGroupFeed(ctx context.Context, req DeleteGroupFeedRequest) (apierrors.ServiceError, error) {
	feedId, err := domain.ParseFeedId(req.FeedID)
	if err != nil {
		return apierrors.ServiceError{}, fmt.Errorf("parsing feed id: %w", err)
	}
	return apierrors.Envelope(rs.svc.DeleteGroupFeed(ctx, feedId, domain.Address(req.OwnerAddress))), nil
}
