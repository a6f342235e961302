package metrics

import "go.uber.org/atomic"

// ProjectionCounters tracks the hit/miss/write/error counters every
// projection service exposes. It is intentionally
// not backed by OpenTelemetry instruments directly: projection calls happen
// on the hot idle-sync path and a plain atomic increment is cheaper than a
// meter callback per read, so these counters are plain atomics read through
// Snapshot; nothing in this package exports them to an OTEL meter.
type ProjectionCounters struct {
	Hits        atomic.Int64
	Misses      atomic.Int64
	Writes      atomic.Int64
	WriteErrors atomic.Int64
	ReadErrors  atomic.Int64
}

// NewProjectionCounters returns a zeroed counter set.
func NewProjectionCounters() *ProjectionCounters {
	return &ProjectionCounters{}
}

// Snapshot is a point-in-time copy of the counters, safe to log or export.
type Snapshot struct {
	Hits        int64
	Misses      int64
	Writes      int64
	WriteErrors int64
	ReadErrors  int64
}

// Snapshot reads all counters without resetting them.
func (c *ProjectionCounters) Snapshot() Snapshot {
	return Snapshot{
		Hits:        c.Hits.Load(),
		Misses:      c.Misses.Load(),
		Writes:      c.Writes.Load(),
		WriteErrors: c.WriteErrors.Load(),
		ReadErrors:  c.ReadErrors.Load(),
	}
}
