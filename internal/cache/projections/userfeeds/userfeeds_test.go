package userfeeds

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
)

type fakeStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{sets: map[string]map[string]struct{}{}}
}

func (f *fakeStore) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sets[key]
	return ok, nil
}

func (f *fakeStore) Expire(_ context.Context, _ string, _ time.Duration) error { return nil }

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.sets, k)
	}
	return nil
}

func TestGetMissWhenAbsent(t *testing.T) {
	t.Parallel()

	svc := New(newFakeStore(), "", zerolog.Nop())
	_, ok := svc.Get(context.Background(), domain.Address("0xalice"))
	require.False(t, ok)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	svc := New(newFakeStore(), "", zerolog.Nop())
	addr := domain.Address("0xalice")
	f1, err := domain.NewFeedId()
	require.NoError(t, err)
	f2, err := domain.NewFeedId()
	require.NoError(t, err)

	svc.Set(context.Background(), addr, []domain.FeedId{f1, f2})

	got, ok := svc.Get(context.Background(), addr)
	require.True(t, ok)
	require.ElementsMatch(t, []domain.FeedId{f1, f2}, got)
}

func TestSetEmptyDeletesKey(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := New(store, "", zerolog.Nop())
	addr := domain.Address("0xalice")
	f1, err := domain.NewFeedId()
	require.NoError(t, err)

	svc.Set(context.Background(), addr, []domain.FeedId{f1})
	svc.Set(context.Background(), addr, nil)

	_, ok := svc.Get(context.Background(), addr)
	require.False(t, ok)
}

func TestAddOnlyWritesIfKeyExists(t *testing.T) {
	t.Parallel()

	svc := New(newFakeStore(), "", zerolog.Nop())
	addr := domain.Address("0xalice")
	f1, err := domain.NewFeedId()
	require.NoError(t, err)

	svc.Add(context.Background(), addr, f1)
	_, ok := svc.Get(context.Background(), addr)
	require.False(t, ok, "add must not create a partial cache entry")

	svc.Set(context.Background(), addr, []domain.FeedId{f1})
	f2, err := domain.NewFeedId()
	require.NoError(t, err)
	svc.Add(context.Background(), addr, f2)

	got, ok := svc.Get(context.Background(), addr)
	require.True(t, ok)
	require.ElementsMatch(t, []domain.FeedId{f1, f2}, got)
}
