package roadmap

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusTodo.IsValid())
	assert.True(t, StatusInProgress.IsValid())
	assert.True(t, StatusDone.IsValid())
	assert.False(t, Status("blocked").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestItem_IsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		snap *Snapshot
		want bool
	}{
		{name: "no snapshot", snap: nil, want: true},
		{name: "zero fetchedAt", snap: &Snapshot{}, want: true},
		{name: "fresh", snap: &Snapshot{FetchedAt: now.Add(-59 * time.Minute)}, want: false},
		{name: "exactly one hour", snap: &Snapshot{FetchedAt: now.Add(-time.Hour)}, want: true},
		{name: "old", snap: &Snapshot{FetchedAt: now.Add(-3 * time.Hour)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := Item{Snapshot: tt.snap}
			assert.Equal(t, tt.want, it.IsStale(now, DefaultStaleAfter))
		})
	}
}

func TestItem_AddContributor(t *testing.T) {
	founder := Contributor{Address: "bc1qfounder", DisplayName: "Founder"}
	it := Item{Contributors: []Contributor{founder}}

	assert.True(t, it.AddContributor(Contributor{Address: "bc1qalice", DisplayName: "Alice"}))
	assert.True(t, it.AddContributor(Contributor{Address: "github:bob", DisplayName: "bob"}))
	assert.False(t, it.AddContributor(Contributor{Address: "bc1qalice", DisplayName: "Alice again"}))
	assert.False(t, it.AddContributor(Contributor{Address: "BC1QALICE"}))
	assert.False(t, it.AddContributor(Contributor{}))

	require.Len(t, it.Contributors, 3)
	assert.Equal(t, "bc1qfounder", it.Contributors[0].Address)
	assert.Equal(t, "bc1qalice", it.Contributors[1].Address)
	assert.Equal(t, "Alice", it.Contributors[1].DisplayName)
	assert.Equal(t, "github:bob", it.Contributors[2].Address)
}

func TestItem_ApplySnapshot(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("closed advances to done", func(t *testing.T) {
		it := Item{Status: StatusInProgress}
		require.True(t, it.ApplySnapshot(Snapshot{State: "closed", FetchedAt: t0}, t0))
		assert.Equal(t, StatusDone, it.Status)
		assert.Equal(t, t0, it.UpdatedAt)
	})

	t.Run("merged and archived advance", func(t *testing.T) {
		pr := Item{Status: StatusTodo}
		pr.ApplySnapshot(Snapshot{State: "open", Merged: true, FetchedAt: t0}, t0)
		assert.Equal(t, StatusDone, pr.Status)

		repo := Item{Status: StatusTodo}
		repo.ApplySnapshot(Snapshot{Kind: KindRepo, State: "archived", FetchedAt: t0}, t0)
		assert.Equal(t, StatusDone, repo.Status)
	})

	t.Run("open keeps status", func(t *testing.T) {
		it := Item{Status: StatusInProgress}
		it.ApplySnapshot(Snapshot{State: "open", FetchedAt: t0}, t0)
		assert.Equal(t, StatusInProgress, it.Status)
	})

	t.Run("done never reverts", func(t *testing.T) {
		it := Item{Status: StatusDone}
		it.ApplySnapshot(Snapshot{State: "open", FetchedAt: t0}, t0)
		assert.Equal(t, StatusDone, it.Status)
		it.ApplySnapshot(Snapshot{State: "active", FetchedAt: t0.Add(time.Hour)}, t0.Add(time.Hour))
		assert.Equal(t, StatusDone, it.Status)
	})

	t.Run("older snapshot ignored", func(t *testing.T) {
		it := Item{Snapshot: &Snapshot{State: "open", FetchedAt: t0}}
		assert.False(t, it.ApplySnapshot(Snapshot{State: "closed", FetchedAt: t0.Add(-time.Minute)}, t0))
		assert.Equal(t, t0, it.Snapshot.FetchedAt)
		assert.Equal(t, "open", it.Snapshot.State)
	})
}

func TestItem_CloneDoesNotAlias(t *testing.T) {
	stars := 3
	orig := Item{
		Contributors: []Contributor{{Address: "a"}},
		Snapshot:     &Snapshot{Assignees: []string{"x"}, Stars: &stars},
		Ref:          &Ref{Owner: "acme", Repo: "widgets"},
	}

	cp := orig.Clone()
	cp.Contributors[0].Address = "b"
	cp.Snapshot.Assignees[0] = "y"
	*cp.Snapshot.Stars = 9
	cp.Ref.Owner = "other"

	assert.Equal(t, "a", orig.Contributors[0].Address)
	assert.Equal(t, "x", orig.Snapshot.Assignees[0])
	assert.Equal(t, 3, *orig.Snapshot.Stars)
	assert.Equal(t, "acme", orig.Ref.Owner)
}

func TestCollection_Reorder(t *testing.T) {
	ids := func(c Collection) []string {
		out := make([]string, len(c.Items))
		for i, it := range c.Items {
			out[i] = it.ID
		}
		return out
	}

	c := Collection{Items: []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}}
	c.Reorder([]string{"c", "zzz", "a", "c"})
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(c))

	c.Reorder(nil)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(c))
}

func TestCollection_Find(t *testing.T) {
	c := Collection{Items: []Item{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}}

	it, ok := c.Find("b")
	require.True(t, ok)
	assert.Equal(t, "B", it.Title)
	assert.Equal(t, 1, c.Index("b"))

	_, ok = c.Find("nope")
	assert.False(t, ok)
	assert.Equal(t, -1, c.Index("nope"))
}

func TestCollection_FreshIDSkipsTakenIDs(t *testing.T) {
	c := Collection{Items: []Item{{ID: "r_1"}, {ID: "r_2"}}}
	ids := []string{"r_2", "r_1", "r_3"}

	got := c.FreshID(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	})
	assert.Equal(t, "r_3", got)
	assert.Empty(t, ids)
}

func TestNewItemID(t *testing.T) {
	id := NewItemID()
	assert.Len(t, id, 10)
	assert.True(t, strings.HasPrefix(id, "r_"))
	assert.NotEqual(t, id, NewItemID())
}
