package roadmap

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/core/messaging"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
)

// backfillLimit caps the events added by a single backfill run.
const backfillLimit = 50

type mentionHit struct {
	item core.Item
	msg  messaging.Message
	mt   core.MatchType
}

// ScanMentions folds the live feed into the message archive and updates
// the mention counter of every item. Only messages newer than an item's
// lastSeen are counted unless reset is set, in which case counters are
// recomputed from the whole working set and no events are emitted.
func (s *Service) ScanMentions(ctx context.Context, reset bool) (StageResult, error) {
	var res StageResult

	live, err := s.liveMessages(ctx)
	if err != nil {
		res.Failed++
	}
	if len(live) > 0 {
		if _, err := s.archive.Absorb(ctx, live); err != nil {
			if errors.Is(err, kv.ErrConflict) {
				s.log.Info().Ctx(ctx).Msg("message archive changed concurrently, skipping archive update")
			} else {
				s.log.Warn().Ctx(ctx).Err(err).Msg("failed to update message archive")
			}
		}
	}

	msgs := messaging.Merge(live, s.archivedMessages(ctx))

	rec, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}

	next := rec.Collection.Clone()
	var hits []mentionHit
	for i := range next.Items {
		it := &next.Items[i]
		res.Checked++

		counted := it.Mentions
		if reset {
			counted = core.Mentions{}
		}

		found := counted
		for _, m := range msgs {
			if m.Timestamp <= counted.LastSeen {
				continue
			}
			mt := core.MatchMention(m.Preview, *it)
			if mt == core.MatchNone {
				continue
			}
			found.Count++
			if m.Timestamp > found.LastSeen {
				found.LastSeen = m.Timestamp
			}
			if !reset {
				hits = append(hits, mentionHit{item: *it, msg: m, mt: mt})
			}
		}

		if found != it.Mentions {
			it.Mentions = found
			res.Updated++
		}
	}

	if res.Updated == 0 {
		return res, nil
	}

	if _, err := s.store.Save(ctx, next, rec.Token); err != nil {
		if errors.Is(err, kv.ErrConflict) {
			s.log.Info().Ctx(ctx).Msg("mention scan lost a race, skipping cycle")
			res.Conflict = true
			res.Updated = 0
			return res, nil
		}
		return res, err
	}

	slices.SortStableFunc(hits, func(a, b mentionHit) int {
		return strings.Compare(a.msg.Timestamp, b.msg.Timestamp)
	})
	evs := make([]eventlog.Event, 0, len(hits))
	for _, h := range hits {
		evs = append(evs, mentionEvent(h))
	}
	s.record(ctx, evs...)

	return res, nil
}

func mentionEvent(h mentionHit) eventlog.Event {
	ev := eventlog.Event{
		Type:      eventlog.ItemMentioned,
		ItemID:    h.item.ID,
		ItemTitle: h.item.Title,
		Data: map[string]any{
			"timestamp":      h.msg.Timestamp,
			"agent":          h.msg.Agent.String(),
			"recipient":      h.msg.Recipient.String(),
			"messagePreview": h.msg.Preview,
			"matchType":      string(h.mt),
		},
	}
	if h.msg.Agent.BTCAddress != "" {
		ev.Agent = &eventlog.Actor{
			BTCAddress:  h.msg.Agent.BTCAddress,
			DisplayName: h.msg.Agent.Name,
		}
	}
	return ev
}

func mentionKey(itemID, timestamp string) string {
	return itemID + "|" + timestamp
}

// BackfillMentions re-matches every logged message preview against the
// current items and appends the item.mentioned events that are missing,
// so items created after a message rotated out of the archive still get
// credit. It reads the items but only writes the event log.
func (s *Service) BackfillMentions(ctx context.Context) (StageResult, error) {
	var res StageResult

	events, err := s.events.List(ctx)
	if err != nil {
		return res, err
	}
	rec, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}

	known := make(map[string]struct{})
	for _, ev := range events {
		if ev.Type == eventlog.ItemMentioned {
			known[mentionKey(ev.ItemID, ev.DataString("timestamp"))] = struct{}{}
		}
	}

	var added []eventlog.Event
	for i := len(events) - 1; i >= 0 && len(added) < backfillLimit; i-- {
		ev := events[i]
		preview := ev.DataString("messagePreview")
		if preview == "" {
			continue
		}
		res.Checked++

		ts := ev.DataString("timestamp")
		if ts == "" {
			ts = ev.Timestamp
		}

		for _, item := range rec.Collection.Items {
			key := mentionKey(item.ID, ts)
			if _, ok := known[key]; ok {
				continue
			}
			mt := core.MatchMention(preview, item)
			if mt == core.MatchNone {
				continue
			}
			known[key] = struct{}{}

			added = append(added, eventlog.Event{
				Type:      eventlog.ItemMentioned,
				Agent:     ev.Agent,
				ItemID:    item.ID,
				ItemTitle: item.Title,
				Data: map[string]any{
					"timestamp":      ts,
					"agent":          ev.DataString("agent"),
					"recipient":      ev.DataString("recipient"),
					"messagePreview": preview,
					"matchType":      string(mt),
					"backfilled":     true,
				},
			})
			if len(added) == backfillLimit {
				break
			}
		}
	}

	if len(added) == 0 {
		return res, nil
	}

	if _, err := s.events.AppendAll(ctx, added); err != nil {
		return res, err
	}
	res.Updated = len(added)
	return res, nil
}
