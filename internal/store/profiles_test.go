package store_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hushnetwork/node-cache/internal/domain"
	"github.com/hushnetwork/node-cache/internal/store"
	"github.com/hushnetwork/node-cache/tests"
)

func newTestTransactor(t *testing.T) *store.Transactor {
	t.Helper()
	url, err := tests.PostgresURL()
	require.NoError(t, err)

	pool, err := store.Open(context.Background(), url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return store.NewTransactor(pool)
}

func TestProfileRepoUpsertThenGet(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewProfileRepo(txn)
	ctx := context.Background()

	p := domain.Profile{
		Address:             "0xalice",
		Alias:               "Alice",
		ShortAlias:          "ali",
		PublicEncryptionKey: []byte{1, 2, 3},
		IsPublic:            true,
		BlockIndex:          10,
	}
	require.NoError(t, repo.Upsert(ctx, p))

	got, err := repo.Get(ctx, "0xalice")
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestProfileRepoGetMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewProfileRepo(txn)

	_, err := repo.Get(context.Background(), "0xnobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileRepoUpsertOverwritesExistingRow(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewProfileRepo(txn)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Profile{Address: "0xbob", Alias: "Bob", BlockIndex: 1}))
	require.NoError(t, repo.Upsert(ctx, domain.Profile{Address: "0xbob", Alias: "Bobby", BlockIndex: 2}))

	got, err := repo.Get(ctx, "0xbob")
	require.NoError(t, err)
	require.Equal(t, "Bobby", got.Alias)
	require.EqualValues(t, 2, got.BlockIndex)
}

func TestProfileRepoGetManySkipsUnknownAddresses(t *testing.T) {
	t.Parallel()

	txn := newTestTransactor(t)
	repo := store.NewProfileRepo(txn)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.Profile{Address: "0xcarol", Alias: "Carol", BlockIndex: 1}))

	got, err := repo.GetMany(ctx, []domain.Address{"0xcarol", "0xnobody"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Carol", got["0xcarol"].Alias)
}
