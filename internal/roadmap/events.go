package roadmap

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/kv"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap/github"
)

const (
	cursorNamespace = "github.events"
	bodyPreviewLen  = 140
)

type timelineFetch struct {
	events []github.TimelineEvent
	err    error
}

// ScanEvents turns new issue and pull request timeline entries into audit
// events. A per-item cursor in the local KV remembers the newest entry
// already recorded; the first scan of an item only sets the cursor.
//
// New assignees are written onto the item's snapshot in one conditional
// save. Cursors only move after that save and the event append both
// succeeded, so a lost race replays the same entries next cycle.
func (s *Service) ScanEvents(ctx context.Context) (StageResult, error) {
	var res StageResult

	rec, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}
	if s.timeline == nil {
		return res, nil
	}

	items := rec.Collection.Items
	var (
		targets []int
		refs    []core.Ref
	)
	for i, it := range items {
		ref, ok := core.ParseGithubURL(it.GithubURL)
		if !ok || !ref.HasNumber() {
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

	fetched := make([]timelineFetch, len(targets))
	err = s.pool.Each(ctx, len(targets), func(j int) {
		evs, err := s.timeline.Timeline(ctx, refs[j])
		fetched[j] = timelineFetch{events: evs, err: err}
	})
	if err != nil {
		return res, err
	}

	next := rec.Collection.Clone()
	cursors := make(map[string]int64)
	var (
		evs          []eventlog.Event
		itemsChanged bool
	)
	for j, idx := range targets {
		f := fetched[j]
		it := &next.Items[idx]
		if f.err != nil {
			res.Failed++
			s.log.Debug().Ctx(ctx).Err(f.err).Str("item", it.ID).Msg("timeline fetch failed")
			continue
		}

		timeline := slices.Clone(f.events)
		slices.SortStableFunc(timeline, func(a, b github.TimelineEvent) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		newest := int64(0)
		if n := len(timeline); n > 0 {
			newest = timeline[n-1].CreatedAt.UnixNano()
		}

		has, err := s.cursors.Has(ctx, it.ID)
		if err != nil {
			return res, err
		}
		if !has {
			cursors[it.ID] = newest
			res.Skipped++
			continue
		}
		cursor, err := s.cursors.Get(ctx, it.ID)
		if err != nil {
			return res, err
		}

		found := 0
		for _, te := range timeline {
			if te.CreatedAt.UnixNano() <= cursor {
				continue
			}
			ev, ok := timelineEvent(te, refs[j])
			if !ok {
				continue
			}
			ev.ItemID = it.ID
			ev.ItemTitle = it.Title
			evs = append(evs, ev)
			found++

			if te.Event == "assigned" && addAssignee(it, te.AssigneeLogin()) {
				itemsChanged = true
			}
		}
		if newest > cursor {
			cursors[it.ID] = newest
		}
		if found > 0 {
			res.Updated++
		}
	}

	if itemsChanged {
		if _, err := s.store.Save(ctx, next, rec.Token); err != nil {
			if errors.Is(err, kv.ErrConflict) {
				s.log.Info().Ctx(ctx).Msg("event scan lost a race, skipping cycle")
				res.Conflict = true
				res.Updated = 0
				return res, nil
			}
			return res, err
		}
	}

	if len(evs) > 0 {
		if _, err := s.events.AppendAll(ctx, evs); err != nil {
			return res, err
		}
	}

	for id, c := range cursors {
		if err := s.cursors.Set(ctx, id, c); err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Str("item", id).Msg("failed to advance timeline cursor")
		}
	}

	return res, nil
}

// timelineEvent maps a timeline entry to an audit event. Entries of other
// kinds are ignored.
func timelineEvent(te github.TimelineEvent, ref core.Ref) (eventlog.Event, bool) {
	data := map[string]any{
		"githubLogin": te.Login(),
		"ref":         ref.String(),
		"createdAt":   te.CreatedAt.UTC().Format(time.RFC3339),
	}
	if te.HTMLURL != "" {
		data["url"] = te.HTMLURL
	}

	switch te.Event {
	case "commented":
		data["body"] = preview(te.Body)
		return eventlog.Event{Type: eventlog.GithubComment, Data: data}, true
	case "closed", "reopened", "merged":
		data["state"] = te.Event
		return eventlog.Event{Type: eventlog.GithubStateChanged, Data: data}, true
	case "assigned":
		data["assignee"] = te.AssigneeLogin()
		return eventlog.Event{Type: eventlog.GithubAssigned, Data: data}, true
	}
	return eventlog.Event{}, false
}

// addAssignee records login on the item's snapshot without touching its
// fetch time. Items that were never fetched are left for the refresh.
func addAssignee(it *core.Item, login string) bool {
	if login == "" || it.Snapshot == nil {
		return false
	}
	if slices.ContainsFunc(it.Snapshot.Assignees, func(a string) bool { return strings.EqualFold(a, login) }) {
		return false
	}
	it.Snapshot.Assignees = append(it.Snapshot.Assignees, login)
	return true
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(body) <= bodyPreviewLen {
		return body
	}
	r := []rune(body)
	return string(r[:bodyPreviewLen]) + "…"
}
