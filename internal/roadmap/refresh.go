package roadmap

import (
	"context"
	"errors"

	"github.com/colonyops/roadmap/internal/core/kv"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
)

// RefreshStale re-fetches the snapshot of every stale item with a GitHub
// reference and commits all refreshed items in a single conditional save.
// Fetches run on the worker pool; a failed fetch keeps the item's previous
// snapshot. If the save loses a race the whole batch is dropped and the
// next cycle retries it.
func (s *Service) RefreshStale(ctx context.Context) (StageResult, error) {
	var res StageResult

	rec, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}
	if s.fetcher == nil {
		res.Skipped = len(rec.Collection.Items)
		return res, nil
	}

	now := s.now().UTC()
	items := rec.Collection.Items

	var stale []int
	for i, it := range items {
		if !it.IsStale(now, s.staleAfter) {
			continue
		}
		if _, ok := core.ParseGithubURL(it.GithubURL); !ok {
			res.Skipped++
			continue
		}
		stale = append(stale, i)
	}
	res.Checked = len(stale)
	if len(stale) == 0 {
		return res, nil
	}

	results := make([]core.FetchResult, len(stale))
	err = s.pool.Each(ctx, len(stale), func(j int) {
		results[j] = core.FetchFor(ctx, s.fetcher, items[stale[j]].GithubURL)
	})
	if err != nil {
		return res, err
	}

	next := rec.Collection.Clone()
	for j, idx := range stale {
		r := results[j]
		switch r.Outcome {
		case core.Fetched:
			if next.Items[idx].ApplySnapshot(r.Snapshot, now) {
				res.Updated++
			}
		case core.FetchFailed:
			res.Failed++
			s.log.Debug().Ctx(ctx).Err(r.Err).Str("item", next.Items[idx].ID).Msg("snapshot fetch failed")
		}
	}

	if res.Updated == 0 {
		return res, nil
	}

	if _, err := s.store.Save(ctx, next, rec.Token); err != nil {
		if errors.Is(err, kv.ErrConflict) {
			s.log.Info().Ctx(ctx).Int("refreshed", res.Updated).Msg("refresh lost a race, skipping cycle")
			res.Conflict = true
			res.Updated = 0
			return res, nil
		}
		return res, err
	}

	return res, nil
}
