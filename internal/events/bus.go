// Package events is the in-process event bus that decouples the
// database-mutating write path from cache invalidation: a handler commits
// a change, publishes an event, and every interested subscriber updates its
// own projection independently, at-most-once, without a durable queue.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/pkg/logging"
)

// Kind names one of the domain events the bus carries.
type Kind string

// Event kinds.
const (
	KindIdentityUpdated     Kind = "identity_updated"
	KindUserJoinedGroup     Kind = "user_joined_group"
	KindUserLeftGroup       Kind = "user_left_group"
	KindUserBannedFromGroup Kind = "user_banned_from_group"
	KindGroupTitleChanged   Kind = "group_title_changed"
	KindMessageReacted      Kind = "message_reacted"
)

// Event is the envelope published on the bus. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind Kind

	Address domain.Address
	FeedId  domain.FeedId
	AtBlock domain.BlockIndex

	NewTitle string

	MessageId domain.MessageId
	Tally     domain.ReactionTally
}

// Handler processes one event. It must be crash-safe: the bus recovers a
// panic from a handler invocation, logs it, and drops that delivery rather
// than letting it take down the publisher or other subscribers.
type Handler func(ctx context.Context, e Event)

// subscriberQueueSize bounds how many in-flight events a single slow
// subscriber can buffer before new deliveries are dropped with a warning,
// per the no-unbounded-goroutines backpressure rule.
const subscriberQueueSize = 256

// Bus is a small topic-less publish/subscribe dispatcher.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	log         zerolog.Logger
}

type subscription struct {
	handler Handler
	queue   chan dispatch
}

type dispatch struct {
	ctx context.Context
	evt Event
}

// New constructs an empty Bus.
func New(log zerolog.Logger) *Bus {
	return &Bus{log: logging.Component(log, "event-bus")}
}

// Subscribe registers handler and starts its dedicated delivery goroutine,
// which runs for the lifetime of the Bus.
func (b *Bus) Subscribe(handler Handler) {
	sub := &subscription{handler: handler, queue: make(chan dispatch, subscriberQueueSize)}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	go sub.run(b.log)
}

func (s *subscription) run(log zerolog.Logger) {
	for d := range s.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("kind", string(d.evt.Kind)).Msg("event subscriber panicked, dropping delivery")
				}
			}()
			s.handler(d.ctx, d.evt)
		}()
	}
}

// Publish fans e out to every subscriber's queue without blocking: a full
// queue drops the delivery and logs a warning rather than stalling the
// publisher, per the bounded-time event handler requirement.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- dispatch{ctx: ctx, evt: e}:
		default:
			b.log.Warn().Str("kind", string(e.Kind)).Msg("subscriber queue full, dropping event")
		}
	}
}
