// Package blockchainclock is the Clock port: a single-valued view
// of the last finalized block index, consumed by the rotation engine (to
// stamp ValidFromBlock) and the read-through orchestrator.
//
// The actual chain-tip source — the blockchain finalization engine — is an
// external collaborator, accessed only through a narrow interface,
// so this package wraps an injected poll function rather than talking to a
// node directly. The single-value caching behavior is adapted from the
// teacher's pkg/sharedmemory.SharedMemory, which keeps exactly this shape of
// "last seen block number" state safe for concurrent readers/writers, but
// narrowed from a per-chain map to a single scalar since this system serves
// one chain.
package blockchainclock

import (
	"context"
	"fmt"
	"sync"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// Source is the narrow capability this package needs from the blockchain
// finalization engine: the current finalized block index.
type Source func(ctx context.Context) (domain.BlockIndex, error)

// Clock is a concurrency-safe, single-valued view of the current block
// index, refreshed on demand from Source and cached for readers that don't
// need a fully fresh value (e.g. logging/metrics).
type Clock struct {
	mu     sync.RWMutex
	source Source
	last   domain.BlockIndex
	has    bool
}

// New creates a Clock wrapping the given Source.
func New(source Source) *Clock {
	return &Clock{source: source}
}

// CurrentBlockIndex returns the current finalized block index, querying the
// source and updating the cached last-seen value.
func (c *Clock) CurrentBlockIndex(ctx context.Context) (domain.BlockIndex, error) {
	bi, err := c.source(ctx)
	if err != nil {
		return 0, fmt.Errorf("querying blockchain clock: %w", err)
	}
	c.mu.Lock()
	c.last = bi
	c.has = true
	c.mu.Unlock()
	return bi, nil
}

// LastSeen returns the most recently observed block index without querying
// the source again, and whether any value has been observed yet.
func (c *Clock) LastSeen() (domain.BlockIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.has
}
