package messaging_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/core/messaging"
	"github.com/colonyops/roadmap/internal/data/db"
	"github.com/colonyops/roadmap/internal/data/stores"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKV(t *testing.T) *stores.KVStore {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return stores.NewKVStore(database)
}

func TestArchive_Absorb(t *testing.T) {
	ctx := context.Background()
	archive := messaging.NewArchive(newKV(t), "roadmap:", 3)

	added, err := archive.Absorb(ctx, []messaging.Message{
		{Preview: "a", Timestamp: "2026-03-01T01:00:00Z"},
		{Preview: "b", Timestamp: "2026-03-01T02:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = archive.Absorb(ctx, []messaging.Message{
		{Preview: "b again", Timestamp: "2026-03-01T02:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	added, err = archive.Absorb(ctx, []messaging.Message{
		{Preview: "c", Timestamp: "2026-03-01T03:00:00Z"},
		{Preview: "d", Timestamp: "2026-03-01T04:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	msgs, err := archive.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3, "capped at limit")
	assert.Equal(t, "d", msgs[0].Preview)
	assert.Equal(t, "b", msgs[2].Preview)
}

func TestArchive_ConflictingWriterSkipped(t *testing.T) {
	ctx := context.Background()
	store := newKV(t)
	archive := messaging.NewArchive(store, "roadmap:", 0)

	_, err := archive.Absorb(ctx, []messaging.Message{{Preview: "a", Timestamp: "T1"}})
	require.NoError(t, err)

	// A racing writer bumps the record between our load and save.
	racing := &racingStore{Versioned: store, before: func() {
		require.NoError(t, store.Set(ctx, "roadmap:message-archive", map[string]any{"messages": []any{}}))
	}}
	_, err = messaging.NewArchive(racing, "roadmap:", 0).Absorb(ctx, []messaging.Message{{Preview: "b", Timestamp: "T2"}})
	require.ErrorIs(t, err, kv.ErrConflict)
}

type racingStore struct {
	kv.Versioned
	before func()
}

func (r *racingStore) PutIfVersion(ctx context.Context, key string, value any, expected kv.Version) (kv.Version, error) {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	v, err := r.Versioned.PutIfVersion(ctx, key, value, expected)
	if err != nil {
		return v, fmt.Errorf("racing: %w", err)
	}
	return v, nil
}
