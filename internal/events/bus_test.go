package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToEverySubscriber(t *testing.T) {
	t.Parallel()

	bus := New(zerolog.Nop())

	var mu sync.Mutex
	var gotA, gotB []Kind

	bus.Subscribe(func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		gotA = append(gotA, e.Kind)
	})
	bus.Subscribe(func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		gotB = append(gotB, e.Kind)
	})

	bus.Publish(context.Background(), Event{Kind: KindUserJoinedGroup})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, time.Second, time.Millisecond)
}

func TestSubscriberPanicIsRecoveredAndDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	bus := New(zerolog.Nop())

	var mu sync.Mutex
	var delivered int

	bus.Subscribe(func(_ context.Context, e Event) {
		panic("boom")
	})
	bus.Subscribe(func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		delivered++
	})

	bus.Publish(context.Background(), Event{Kind: KindUserLeftGroup})
	bus.Publish(context.Background(), Event{Kind: KindUserLeftGroup})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	}, time.Second, time.Millisecond)
}

func TestPublishDoesNotBlockWhenSubscriberQueueIsFull(t *testing.T) {
	t.Parallel()

	bus := New(zerolog.Nop())

	block := make(chan struct{})
	var mu sync.Mutex
	processed := 0

	bus.Subscribe(func(_ context.Context, e Event) {
		<-block
		mu.Lock()
		processed++
		mu.Unlock()
	})

	total := subscriberQueueSize + 10
	for i := 0; i < total; i++ {
		bus.Publish(context.Background(), Event{Kind: KindMessageReacted})
	}

	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed > 0
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, processed, total, "never process more deliveries than were published")
}
