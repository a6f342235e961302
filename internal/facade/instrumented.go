package facade

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"

	"github.com/hushnetwork/node-cache/internal/cache/projections/participants"
	"github.com/hushnetwork/node-cache/internal/domain"
)

// Instrumented wraps a Service, recording a call counter and a latency
// histogram for every RPC. Generalizes the teacher's
// InstrumentedTablelandMesa, which wraps every Tableland method the same
// way.
type Instrumented struct {
	svc              *Service
	callCount        syncint64.Counter
	latencyHistogram syncint64.Histogram
}

// NewInstrumented wraps svc with call-count and latency instrumentation.
func NewInstrumented(svc *Service) (*Instrumented, error) {
	meter := global.MeterProvider().Meter("node-cache")
	callCount, err := meter.SyncInt64().Counter("facade.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %w", err)
	}
	latencyHistogram, err := meter.SyncInt64().Histogram("facade.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %w", err)
	}
	return &Instrumented{svc: svc, callCount: callCount, latencyHistogram: latencyHistogram}, nil
}

func (i *Instrumented) record(ctx context.Context, method string, success bool, latency int64) {
	attributes := []attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(success)},
	}
	i.callCount.Add(ctx, 1, attributes...)
	i.latencyHistogram.Record(ctx, latency, attributes...)
}

// HasPersonalFeed instruments Service.HasPersonalFeed.
func (i *Instrumented) HasPersonalFeed(ctx context.Context, address domain.Address) (bool, error) {
	start := time.Now()
	out, err := i.svc.HasPersonalFeed(ctx, address)
	i.record(ctx, "HasPersonalFeed", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// IsFeedInBlockchain instruments Service.IsFeedInBlockchain.
func (i *Instrumented) IsFeedInBlockchain(ctx context.Context, feedId domain.FeedId) (bool, error) {
	start := time.Now()
	out, err := i.svc.IsFeedInBlockchain(ctx, feedId)
	i.record(ctx, "IsFeedInBlockchain", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// GetFeeds instruments Service.GetFeeds.
func (i *Instrumented) GetFeeds(ctx context.Context, address domain.Address) ([]FeedSummary, error) {
	start := time.Now()
	out, err := i.svc.GetFeeds(ctx, address)
	i.record(ctx, "GetFeeds", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// GetFeedMessages instruments Service.GetFeedMessages.
func (i *Instrumented) GetFeedMessages(ctx context.Context, address domain.Address, sinceBlock *domain.BlockIndex, sinceTallyVersion uint64) (GetFeedMessagesResult, error) {
	start := time.Now()
	out, err := i.svc.GetFeedMessages(ctx, address, sinceBlock, sinceTallyVersion)
	i.record(ctx, "GetFeedMessages", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// GetMessageById instruments Service.GetMessageById.
func (i *Instrumented) GetMessageById(ctx context.Context, messageId domain.MessageId) (domain.FeedMessage, error) {
	start := time.Now()
	out, err := i.svc.GetMessageById(ctx, messageId)
	i.record(ctx, "GetMessageById", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// GetGroupMembers instruments Service.GetGroupMembers.
func (i *Instrumented) GetGroupMembers(ctx context.Context, feedId domain.FeedId) ([]participants.Member, error) {
	start := time.Now()
	out, err := i.svc.GetGroupMembers(ctx, feedId)
	i.record(ctx, "GetGroupMembers", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// GetKeyGenerations instruments Service.GetKeyGenerations.
func (i *Instrumented) GetKeyGenerations(ctx context.Context, feedId domain.FeedId, requester domain.Address) ([]KeyGenerationView, error) {
	start := time.Now()
	out, err := i.svc.GetKeyGenerations(ctx, feedId, requester)
	i.record(ctx, "GetKeyGenerations", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// CreateGroupFeed instruments Service.CreateGroupFeed.
func (i *Instrumented) CreateGroupFeed(ctx context.Context, creator domain.Address, title, description string, initialMembers []domain.Address) (domain.FeedId, error) {
	start := time.Now()
	out, err := i.svc.CreateGroupFeed(ctx, creator, title, description, initialMembers)
	i.record(ctx, "CreateGroupFeed", err == nil, time.Since(start).Milliseconds())
	return out, err
}

// JoinGroupFeed instruments Service.JoinGroupFeed.
func (i *Instrumented) JoinGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error {
	start := time.Now()
	err := i.svc.JoinGroupFeed(ctx, feedId, address)
	i.record(ctx, "JoinGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}

// LeaveGroupFeed instruments Service.LeaveGroupFeed.
func (i *Instrumented) LeaveGroupFeed(ctx context.Context, feedId domain.FeedId, address domain.Address) error {
	start := time.Now()
	err := i.svc.LeaveGroupFeed(ctx, feedId, address)
	i.record(ctx, "LeaveGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}

// AddMemberToGroupFeed instruments Service.AddMemberToGroupFeed.
func (i *Instrumented) AddMemberToGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.AddMemberToGroupFeed(ctx, feedId, actor, target)
	i.record(ctx, "AddMemberToGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}

// BanFromGroupFeed instruments Service.BanFromGroupFeed.
func (i *Instrumented) BanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.BanFromGroupFeed(ctx, feedId, actor, target)
	i.record(ctx, "BanFromGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}

// UnbanFromGroupFeed instruments Service.UnbanFromGroupFeed.
func (i *Instrumented) UnbanFromGroupFeed(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.UnbanFromGroupFeed(ctx, feedId, actor, target)
	i.record(ctx, "UnbanFromGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}

// BlockMember instruments Service.BlockMember.
func (i *Instrumented) BlockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.BlockMember(ctx, feedId, actor, target)
	i.record(ctx, "BlockMember", err == nil, time.Since(start).Milliseconds())
	return err
}

// UnblockMember instruments Service.UnblockMember.
func (i *Instrumented) UnblockMember(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.UnblockMember(ctx, feedId, actor, target)
	i.record(ctx, "UnblockMember", err == nil, time.Since(start).Milliseconds())
	return err
}

// PromoteToAdmin instruments Service.PromoteToAdmin.
func (i *Instrumented) PromoteToAdmin(ctx context.Context, feedId domain.FeedId, actor, target domain.Address) error {
	start := time.Now()
	err := i.svc.PromoteToAdmin(ctx, feedId, actor, target)
	i.record(ctx, "PromoteToAdmin", err == nil, time.Since(start).Milliseconds())
	return err
}

// UpdateGroupFeedTitle instruments Service.UpdateGroupFeedTitle.
func (i *Instrumented) UpdateGroupFeedTitle(ctx context.Context, feedId domain.FeedId, actor domain.Address, title string) error {
	start := time.Now()
	err := i.svc.UpdateGroupFeedTitle(ctx, feedId, actor, title)
	i.record(ctx, "UpdateGroupFeedTitle", err == nil, time.Since(start).Milliseconds())
	return err
}

// UpdateGroupFeedDescription instruments Service.UpdateGroupFeedDescription.
func (i *Instrumented) UpdateGroupFeedDescription(ctx context.Context, feedId domain.FeedId, actor domain.Address, description string) error {
	start := time.Now()
	err := i.svc.UpdateGroupFeedDescription(ctx, feedId, actor, description)
	i.record(ctx, "UpdateGroupFeedDescription", err == nil, time.Since(start).Milliseconds())
	return err
}

// DeleteGroupFeed instruments Service.DeleteGroupFeed.
func (i *Instrumented) DeleteGroupFeed(ctx context.Context, feedId domain.FeedId, ownerAddress domain.Address) error {
	start := time.Now()
	err := i.svc.DeleteGroupFeed(ctx, feedId, ownerAddress)
	i.record(ctx, "DeleteGroupFeed", err == nil, time.Since(start).Milliseconds())
	return err
}
