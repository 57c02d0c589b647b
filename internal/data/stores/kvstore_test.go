package stores

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/data/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKVStore(t *testing.T) *KVStore {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewKVStore(database)
}

type cursor struct {
	Item string `json:"item"`
	Last int64  `json:"last"`
}

func TestKVStore_SetGetOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	require.NoError(t, store.Set(ctx, "cursor", cursor{Item: "r_1", Last: 10}))
	require.NoError(t, store.Set(ctx, "cursor", cursor{Item: "r_1", Last: 11}))

	var got cursor
	require.NoError(t, store.Get(ctx, "cursor", &got))
	assert.Equal(t, int64(11), got.Last)

	var missing string
	err := store.Get(ctx, "nope", &missing)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestKVStore_DeleteAndHas(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	has, err := store.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Set(ctx, "k", true))
	has, err = store.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.Delete(ctx, "k"))
	has, err = store.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestKVStore_ListKeysSorted(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	for _, k := range []string{"roadmap:items", "agent-cache:bc1q", "github.events:r_1"} {
		require.NoError(t, store.Set(ctx, k, 1))
	}

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-cache:bc1q", "github.events:r_1", "roadmap:items"}, keys)
}

func TestKVStore_GetRaw(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	require.NoError(t, store.Set(ctx, "raw", map[string]int{"x": 1}))
	require.NoError(t, store.Set(ctx, "raw", map[string]int{"x": 2}))

	entry, err := store.GetRaw(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", entry.Key)
	assert.Contains(t, string(entry.Value), `"x":2`)
	assert.Equal(t, kv.Version("2"), entry.Version)
	assert.Nil(t, entry.ExpiresAt)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestKVStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	require.NoError(t, store.SetTTL(ctx, "alive", "here", time.Hour))
	require.NoError(t, store.SetTTL(ctx, "ephemeral", "gone", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var v string
	require.ErrorIs(t, store.Get(ctx, "ephemeral", &v), sql.ErrNoRows)

	_, err := store.GetRaw(ctx, "ephemeral")
	require.ErrorIs(t, err, sql.ErrNoRows)

	entry, err := store.GetRaw(ctx, "alive")
	require.NoError(t, err)
	assert.NotNil(t, entry.ExpiresAt)
}

func TestKVStore_SweepExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	require.NoError(t, store.Set(ctx, "permanent", "stays"))
	require.NoError(t, store.SetTTL(ctx, "expired", "goes", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, store.SweepExpired(ctx))

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"permanent"}, keys)
}

func TestKVStore_GetVersionedMissing(t *testing.T) {
	store := newTestKVStore(t)

	dest := []string{"untouched"}
	version, err := store.GetVersioned(context.Background(), "absent", &dest)
	require.NoError(t, err)
	assert.Equal(t, kv.NoVersion, version)
	assert.Equal(t, []string{"untouched"}, dest)
}

func TestKVStore_PutIfVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	v1, err := store.PutIfVersion(ctx, "doc", []string{"a"}, kv.NoVersion)
	require.NoError(t, err)
	assert.NotEqual(t, kv.NoVersion, v1)

	// create-only fails once the key exists
	_, err = store.PutIfVersion(ctx, "doc", []string{"b"}, kv.NoVersion)
	require.ErrorIs(t, err, kv.ErrConflict)

	v2, err := store.PutIfVersion(ctx, "doc", []string{"a", "b"}, v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	// stale token is rejected and nothing is written
	_, err = store.PutIfVersion(ctx, "doc", []string{"stale"}, v1)
	require.ErrorIs(t, err, kv.ErrConflict)

	var cerr *kv.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, v1, cerr.Expected)
	assert.Equal(t, v2, cerr.Current)

	var got []string
	version, err := store.GetVersioned(ctx, "doc", &got)
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestKVStore_PutIfVersionMalformedToken(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	_, err := store.PutIfVersion(ctx, "doc", 1, kv.NoVersion)
	require.NoError(t, err)

	_, err = store.PutIfVersion(ctx, "doc", 2, kv.Version("\"etag\""))
	assert.ErrorIs(t, err, kv.ErrConflict)
}

func TestKVStore_PutIfVersionSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestKVStore(t)

	base, err := store.PutIfVersion(ctx, "doc", 0, kv.NoVersion)
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)

	for i := range writers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.PutIfVersion(ctx, "doc", n, base)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, kv.ErrConflict):
				conflicts++
			}
		}(i + 1)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}
