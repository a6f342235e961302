package rotation

import (
	"context"
	"fmt"
	"sync"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// lockTable is the per-feed serialization gate: one mutex per feedId,
// permanently retained for the lifetime of the process, so that generation
// allocation (Engine.Rotate's steps 1-7) is linearizable per feed without a
// database-row lock. Grounded on the teacher's LocalTracker, which holds a
// single mutex across its own nonce-allocation critical section; here the
// mutex is keyed because the engine must serialize per feed, not globally.
type lockTable struct {
	mu    sync.Mutex
	locks map[domain.FeedId]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[domain.FeedId]*sync.Mutex)}
}

func (lt *lockTable) mutexFor(feedId domain.FeedId) *sync.Mutex {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	m, ok := lt.locks[feedId]
	if !ok {
		m = &sync.Mutex{}
		lt.locks[feedId] = m
	}
	return m
}

// acquire blocks until the per-feed lock is held or ctx is cancelled,
// returning a release function. The hard rotation timeout (default 30s) is
// the caller's responsibility via ctx, per the deadline-propagation rule.
func (lt *lockTable) acquire(ctx context.Context, feedId domain.FeedId) (func(), error) {
	m := lt.mutexFor(feedId)

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return m.Unlock, nil
	case <-ctx.Done():
		// The goroutine above still owns the lock attempt; once it succeeds
		// it will hold the mutex forever unless released. Spawn a releaser
		// so a late acquisition doesn't deadlock the next caller.
		go func() {
			<-acquired
			m.Unlock()
		}()
		return nil, fmt.Errorf("acquiring rotation lock for feed %s: %w", feedId.String(), ctx.Err())
	}
}
