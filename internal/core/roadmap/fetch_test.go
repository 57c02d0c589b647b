package roadmap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context, ref Ref) (Snapshot, error)

func (f fetcherFunc) FetchSnapshot(ctx context.Context, ref Ref) (Snapshot, error) {
	return f(ctx, ref)
}

func TestFetchFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var calls int
	f := fetcherFunc(func(_ context.Context, ref Ref) (Snapshot, error) {
		calls++
		if ref.Repo == "broken" {
			return Snapshot{}, errors.New("status 502")
		}
		return Snapshot{Kind: ref.Kind, Number: ref.Number, State: "closed", FetchedAt: now}, nil
	})

	res := FetchFor(context.Background(), f, "not a url")
	assert.Equal(t, NotApplicable, res.Outcome)
	assert.Equal(t, 0, calls)

	res = FetchFor(context.Background(), f, "https://github.com/acme/broken/issues/1")
	assert.Equal(t, FetchFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Equal(t, KindFetchFailed, KindOf(res.Err))
	assert.Equal(t, "external fetch failed", res.Err.Error())

	res = FetchFor(context.Background(), f, "https://github.com/acme/widgets/issues/42")
	assert.Equal(t, Fetched, res.Outcome)
	assert.Equal(t, 42, res.Snapshot.Number)
	assert.Equal(t, 2, calls)

	res = FetchFor(context.Background(), nil, "https://github.com/acme/widgets")
	assert.Equal(t, NotApplicable, res.Outcome)
	assert.Equal(t, "not_applicable", res.Outcome.String())
}
