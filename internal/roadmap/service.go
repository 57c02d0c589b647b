// Package roadmap implements the item operations and the background
// enrichment cycle on top of the versioned collection store.
package roadmap

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/core/logging"
	"github.com/colonyops/roadmap/internal/core/messaging"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/internal/roadmap/github"
	"github.com/colonyops/roadmap/pkg/workpool"
)

// Identity resolves an agent address to a verified identity.
type Identity interface {
	Resolve(ctx context.Context, address string) (core.Agent, bool)
}

// MessageFeed returns the live agent messages.
type MessageFeed interface {
	Messages(ctx context.Context) ([]messaging.Message, error)
}

// ContributorSource lists the GitHub logins that touched a reference.
type ContributorSource interface {
	Contributors(ctx context.Context, ref core.Ref) ([]string, error)
}

// TimelineSource lists the timeline of an issue or pull request.
type TimelineSource interface {
	Timeline(ctx context.Context, ref core.Ref) ([]github.TimelineEvent, error)
}

// Deps wires a Service. Store and KV are required; every external source
// may be nil, in which case the stage depending on it does nothing.
type Deps struct {
	// Store holds the item collection, the event log and the message archive.
	Store kv.Versioned
	// KV holds local bookkeeping such as timeline cursors.
	KV     kv.KV
	Prefix string

	Identity     Identity
	Fetcher      core.SnapshotFetcher
	Feed         MessageFeed
	Contributors ContributorSource
	Timeline     TimelineSource

	Workers      int
	StaleAfter   time.Duration
	MaxEvents    int
	ArchiveLimit int
}

// Service is the entry point for every read and write of the roadmap.
type Service struct {
	store   *core.CollectionStore
	events  *eventlog.Log
	archive *messaging.Archive
	cursors *kv.TypedKV[int64]

	identity     Identity
	fetcher      core.SnapshotFetcher
	feed         MessageFeed
	contributors ContributorSource
	timeline     TimelineSource

	pool       *workpool.Pool
	staleAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// New creates a Service from deps.
func New(d Deps) *Service {
	staleAfter := d.StaleAfter
	if staleAfter <= 0 {
		staleAfter = core.DefaultStaleAfter
	}

	return &Service{
		store:        core.NewCollectionStore(d.Store, d.Prefix),
		events:       eventlog.New(d.Store, d.Prefix, d.MaxEvents),
		archive:      messaging.NewArchive(d.Store, d.Prefix, d.ArchiveLimit),
		cursors:      kv.Scoped[int64](d.KV, cursorNamespace),
		identity:     d.Identity,
		fetcher:      d.Fetcher,
		feed:         d.Feed,
		contributors: d.Contributors,
		timeline:     d.Timeline,
		pool:         workpool.New(d.Workers),
		staleAfter:   staleAfter,
		log:          logging.Component("roadmap"),
		now:          time.Now,
		newID:        core.NewItemID,
	}
}

// Events exposes the audit log.
func (s *Service) Events() *eventlog.Log {
	return s.events
}

// record appends evs to the audit log. It runs after the item write has
// committed, so a failure is logged and otherwise ignored.
func (s *Service) record(ctx context.Context, evs ...eventlog.Event) {
	if len(evs) == 0 {
		return
	}
	if _, err := s.events.AppendAll(ctx, evs); err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Int("count", len(evs)).Msg("failed to record events")
	}
}

// writeError maps a store failure of a user write to a categorized error.
func writeError(err error) error {
	var rerr *core.Error
	switch {
	case errors.As(err, &rerr):
		return err
	case errors.Is(err, kv.ErrConflict):
		return core.Conflict(err)
	}
	return core.Internal("could not save roadmap", err)
}

func actor(agent core.Agent) *eventlog.Actor {
	return &eventlog.Actor{
		BTCAddress:  agent.BTCAddress,
		DisplayName: agent.DisplayName,
		AgentID:     agent.AgentID,
	}
}
