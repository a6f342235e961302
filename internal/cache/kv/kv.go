// Package kv is the KV Store Port: the narrow interface every
// projection service is written against, so none of them import
// github.com/redis/go-redis/v9 directly. Grounded on the redis.ClusterClient
// usage pattern in the connectify-v2 reference (Get/Set with TTL, SMembers,
// Publish) and generalized into a full port with the primitives the
// per-projection key shapes actually need (hashes, sets, lists, CAS).
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable is returned when the underlying store cannot be
// reached at all (connection refused, timeout dialing, cluster down).
var ErrBackendUnavailable = errors.New("kv: backend unavailable")

// ErrTypeMismatch is returned when a key exists but holds a different Redis
// type than the operation expects (e.g. HGETALL against a string key).
var ErrTypeMismatch = errors.New("kv: type mismatch")

// ErrScriptError wraps a failure running a server-side Lua script (the
// MAX-wins script behind MaxWinsHashUpdate).
var ErrScriptError = errors.New("kv: script error")

// ErrNotFound is returned by single-key reads (Get, HGet) when the key is
// absent. Set-returning and hash-returning bulk reads return an empty
// value instead, matching go-redis's own miss semantics for those calls.
var ErrNotFound = errors.New("kv: not found")

// Store is the KV Store Port. Every method takes a context so Redis calls
// participate in the caller's cancellation/deadline.
type Store interface {
	// String operations.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Hash operations, used by feed-metadata, identity, and key-generation
	// bundle projections.
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HMGet returns the requested fields in one round-trip. Absent fields
	// are omitted from the result map rather than present with an empty
	// value, so callers can distinguish "field absent" from "field set to
	// empty string".
	HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error

	// Set operations, used by the user-feeds and group-participants
	// projections.
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// List operations, used by the feed-message-tail projection's bounded
	// ring buffer.
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// MaxWinsHashUpdate runs the server-side MAX-wins script: field on key
	// is set to candidate only if candidate is numerically greater than the
	// field's current value, or the field is absent. On success the whole
	// hash's TTL is refreshed. Returns whether the update applied — this is
	// the one operation the port performs via scripted evaluation rather
	// than a plain command, since it must be atomic against concurrent
	// advances of the same field.
	MaxWinsHashUpdate(ctx context.Context, key, field string, candidate int64, ttl time.Duration) (bool, error)

	// Pipeline batches a set of operations into a single round-trip. fn
	// receives a Pipeline to queue commands against; the queued commands are
	// sent inside one MULTI/EXEC transaction, so no other client's command
	// runs between them (on a cluster client, one transaction per hash
	// slot). Nothing is WATCHed, so the unit is not conditional on any
	// key's value; the one conditional update is MaxWinsHashUpdate's script.
	Pipeline(ctx context.Context, fn func(p Pipeline) error) error

	// Close releases the underlying connection pool.
	Close() error
}

// Pipeline is a batch of queued, not-yet-executed commands.
type Pipeline interface {
	Set(key, value string, ttl time.Duration)
	HSet(key string, fields map[string]string)
	SAdd(key string, members ...string)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
}
