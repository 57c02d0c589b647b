package roadmap

import (
	"context"
	"errors"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/kv"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
)

// GithubAddressPrefix marks contributors discovered on GitHub rather than
// through an agent identity.
const GithubAddressPrefix = "github:"

// GithubContributor returns the contributor entry for a GitHub login.
func GithubContributor(login string) core.Contributor {
	return core.Contributor{
		Address:     GithubAddressPrefix + login,
		DisplayName: login,
		GithubLogin: login,
	}
}

type contributorFetch struct {
	logins []string
	err    error
}

// ScanContributors adds every GitHub user that touched an item's reference
// as a contributor. Existing contributors are never duplicated or
// reordered. All additions are committed in one conditional save; a lost
// race drops them until the next cycle.
func (s *Service) ScanContributors(ctx context.Context) (StageResult, error) {
	var res StageResult

	rec, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}
	if s.contributors == nil {
		return res, nil
	}

	items := rec.Collection.Items
	var (
		targets []int
		refs    []core.Ref
	)
	for i, it := range items {
		ref, ok := core.ParseGithubURL(it.GithubURL)
		if !ok {
			res.Skipped++
			continue
		}
		targets = append(targets, i)
		refs = append(refs, ref)
	}
	res.Checked = len(targets)
	if len(targets) == 0 {
		return res, nil
	}

	fetched := make([]contributorFetch, len(targets))
	err = s.pool.Each(ctx, len(targets), func(j int) {
		logins, err := s.contributors.Contributors(ctx, refs[j])
		fetched[j] = contributorFetch{logins: logins, err: err}
	})
	if err != nil {
		return res, err
	}

	next := rec.Collection.Clone()
	var evs []eventlog.Event
	for j, idx := range targets {
		f := fetched[j]
		it := &next.Items[idx]
		if f.err != nil {
			res.Failed++
			s.log.Debug().Ctx(ctx).Err(f.err).Str("item", it.ID).Msg("contributor fetch failed")
			continue
		}

		changed := false
		for _, login := range f.logins {
			if !it.AddContributor(GithubContributor(login)) {
				continue
			}
			changed = true
			evs = append(evs, eventlog.Event{
				Type:      eventlog.GithubContributor,
				ItemID:    it.ID,
				ItemTitle: it.Title,
				Data: map[string]any{
					"githubLogin": login,
					"ref":         refs[j].String(),
				},
			})
		}
		if changed {
			res.Updated++
		}
	}

	if res.Updated == 0 {
		return res, nil
	}

	if _, err := s.store.Save(ctx, next, rec.Token); err != nil {
		if errors.Is(err, kv.ErrConflict) {
			s.log.Info().Ctx(ctx).Msg("contributor scan lost a race, skipping cycle")
			res.Conflict = true
			res.Updated = 0
			return res, nil
		}
		return res, err
	}

	s.record(ctx, evs...)
	return res, nil
}
