// Package eventlog is the bounded audit trail of roadmap changes. Events are
// kept newest first in a single record and the oldest are pruned on append.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/google/uuid"
)

const (
	// Key is the storage key suffix of the event log.
	Key = "events"

	// DefaultMaxEvents bounds the number of retained events.
	DefaultMaxEvents = 200

	// DefaultFeedLimit is used when a feed query sets no limit.
	DefaultFeedLimit = 50

	appendAttempts = 3
)

// Type identifies what happened.
type Type string

const (
	ItemCreated        Type = "item.created"
	ItemUpdated        Type = "item.updated"
	ItemStatusChanged  Type = "item.status_changed"
	ItemDeleted        Type = "item.deleted"
	ItemReordered      Type = "item.reordered"
	ItemMentioned      Type = "item.mentioned"
	GithubComment      Type = "github.comment"
	GithubStateChanged Type = "github.state_changed"
	GithubAssigned     Type = "github.assigned"
	GithubContributor  Type = "github.contributor_added"
)

// Actor is the agent that caused an event.
type Actor struct {
	BTCAddress  string `json:"btcAddress"`
	DisplayName string `json:"displayName"`
	AgentID     *int64 `json:"agentId,omitempty"`
}

// Event is one audit entry.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp string         `json:"timestamp"`
	Agent     *Actor         `json:"agent"`
	ItemID    string         `json:"itemId,omitempty"`
	ItemTitle string         `json:"itemTitle,omitempty"`
	Data      map[string]any `json:"data"`
}

// DataString returns Data[key] when it is a string.
func (e Event) DataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

type logFile struct {
	Version int     `json:"version"`
	Events  []Event `json:"events"`
}

// Log appends to and reads the audit trail.
type Log struct {
	doc *kv.Doc[logFile]
	max int
	now func() time.Time
}

// New binds the log to "<prefix>events". max <= 0 selects DefaultMaxEvents.
func New(store kv.Versioned, prefix string, max int) *Log {
	if max <= 0 {
		max = DefaultMaxEvents
	}
	return &Log{
		doc: kv.Document[logFile](store, prefix+Key),
		max: max,
		now: time.Now,
	}
}

// NewID returns a fresh event id.
func NewID() string {
	return "e_" + uuid.NewString()[:8]
}

// List returns all retained events, newest first.
func (l *Log) List(ctx context.Context) ([]Event, error) {
	f, _, err := l.doc.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return f.Events, nil
}

// Append records a single event. See AppendAll.
func (l *Log) Append(ctx context.Context, ev Event) (Event, error) {
	out, err := l.AppendAll(ctx, []Event{ev})
	if err != nil {
		return Event{}, err
	}
	return out[0], nil
}

// AppendAll records evs in one write, filling in missing ids and
// timestamps. The last element of evs ends up newest. Appends commute, so a
// lost race is retried against the reloaded log a few times before the
// conflict is returned.
func (l *Log) AppendAll(ctx context.Context, evs []Event) ([]Event, error) {
	if len(evs) == 0 {
		return nil, nil
	}

	stamped := make([]Event, len(evs))
	ts := l.now().UTC().Format(time.RFC3339Nano)
	for i, ev := range evs {
		if ev.ID == "" {
			ev.ID = NewID()
		}
		if ev.Timestamp == "" {
			ev.Timestamp = ts
		}
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		stamped[i] = ev
	}

	var err error
	for range appendAttempts {
		if err = l.appendOnce(ctx, stamped); err == nil {
			return stamped, nil
		}
		if !errors.Is(err, kv.ErrConflict) {
			return nil, err
		}
	}

	return nil, err
}

func (l *Log) appendOnce(ctx context.Context, evs []Event) error {
	f, version, err := l.doc.Load(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if f.Version == 0 {
		f.Version = 1
	}

	next := make([]Event, 0, len(evs)+len(f.Events))
	for i := len(evs) - 1; i >= 0; i-- {
		next = append(next, evs[i])
	}
	next = append(next, f.Events...)

	if len(next) > l.max {
		next = next[:l.max]
	}
	f.Events = next

	if _, err := l.doc.Save(ctx, f, version); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}

// FeedQuery filters the feed. Zero values mean "any".
type FeedQuery struct {
	Limit  int
	Type   Type
	ItemID string
}

// Feed returns up to q.Limit matching events, newest first. The limit
// defaults to DefaultFeedLimit and is clamped to [1, DefaultMaxEvents].
func (l *Log) Feed(ctx context.Context, q FeedQuery) ([]Event, error) {
	events, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	switch {
	case limit == 0:
		limit = DefaultFeedLimit
	case limit < 1:
		limit = 1
	case limit > DefaultMaxEvents:
		limit = DefaultMaxEvents
	}

	out := make([]Event, 0, min(limit, len(events)))
	for _, ev := range events {
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		if q.ItemID != "" && ev.ItemID != q.ItemID {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}
