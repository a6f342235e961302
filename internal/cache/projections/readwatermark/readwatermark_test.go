package readwatermark

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
)

// fakeStore is a hand-written fake implementing the same interface as
// kv.RedisStore, scoped to the handful of operations this projection
// uses.
type fakeStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	blobs  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: map[string]map[string]string{}, blobs: map[string]string{}}
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	for k, v := range fields {
		f.hashes[key][k] = v
	}
	return nil
}

func (f *fakeStore) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeStore) MaxWinsHashUpdate(_ context.Context, key, field string, candidate int64, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	current, ok := f.hashes[key][field]
	if ok {
		cur, err := strconv.ParseInt(current, 10, 64)
		if err == nil && cur >= candidate {
			return false, nil
		}
	}
	f.hashes[key][field] = strconv.FormatInt(candidate, 10)
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[key], nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.blobs, k)
		delete(f.hashes, k)
	}
	return nil
}

func TestSetMaxWins(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := New(store, "", zerolog.Nop())

	addr := domain.Address("0xalice")
	feedId, err := domain.NewFeedId()
	require.NoError(t, err)

	require.True(t, svc.Set(context.Background(), addr, feedId, 100))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = svc.Set(context.Background(), addr, feedId, 50)
	}()
	go func() {
		defer wg.Done()
		results[1] = svc.Set(context.Background(), addr, feedId, 150)
	}()
	wg.Wait()

	require.False(t, results[0])
	require.True(t, results[1])

	got, ok := svc.GetAll(context.Background(), addr)
	require.True(t, ok)
	require.Equal(t, domain.BlockIndex(150), got[feedId])
}

func TestGetAllMissOnEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := New(store, "", zerolog.Nop())

	_, ok := svc.GetAll(context.Background(), domain.Address("0xnobody"))
	require.False(t, ok)
}

func TestMigrateLegacyEntryImportsAndDeletes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := New(store, "", zerolog.Nop())

	addr := domain.Address("0xalice")
	feedId, err := domain.NewFeedId()
	require.NoError(t, err)

	store.blobs[svc.legacyKey(addr, feedId)] = "77"

	svc.MigrateLegacyEntry(context.Background(), addr, feedId)

	got, ok := svc.GetAll(context.Background(), addr)
	require.True(t, ok)
	require.Equal(t, domain.BlockIndex(77), got[feedId])

	v, err := store.Get(context.Background(), svc.legacyKey(addr, feedId))
	require.NoError(t, err)
	require.Empty(t, v)
}
