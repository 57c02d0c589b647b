package roadmap

import (
	"context"
	"slices"
	"strings"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/logging"
	"github.com/colonyops/roadmap/internal/core/messaging"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
)

// CreateInput holds the fields of a new item.
type CreateInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	GithubURL   string      `json:"githubUrl"`
	Status      core.Status `json:"status"`
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	GithubURL   *string      `json:"githubUrl"`
	Status      *core.Status `json:"status"`
}

// Authenticate resolves address to a verified agent.
func (s *Service) Authenticate(ctx context.Context, address string) (core.Agent, error) {
	address = strings.TrimSpace(address)
	if address == "" || s.identity == nil {
		return core.Agent{}, core.ErrUnauthorized
	}

	agent, ok := s.identity.Resolve(ctx, address)
	if !ok || !agent.Authenticated() {
		return core.Agent{}, core.ErrUnauthorized
	}
	return agent, nil
}

// LoadItems returns the items in roadmap order.
func (s *Service) LoadItems(ctx context.Context) ([]core.Item, error) {
	rec, err := s.store.Load(ctx)
	if err != nil {
		return nil, core.Internal("could not load roadmap", err)
	}
	return rec.Collection.Items, nil
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, id string) (core.Item, error) {
	items, err := s.LoadItems(ctx)
	if err != nil {
		return core.Item{}, err
	}
	idx := slices.IndexFunc(items, func(it core.Item) bool { return it.ID == id })
	if idx < 0 {
		return core.Item{}, core.ErrItemNotFound
	}
	return items[idx], nil
}

func validateGithubURL(raw string) (core.Ref, error) {
	if !core.IsGithubURL(raw) {
		return core.Ref{}, core.Invalid("githubUrl must be a github.com URL")
	}
	ref, ok := core.ParseGithubURL(raw)
	if !ok {
		return core.Ref{}, core.Invalid("githubUrl must point to a repository, issue or pull request")
	}
	return ref, nil
}

func invalidStatus() error {
	return core.Invalid("status must be one of todo, in_progress, done")
}

// CreateItem appends a new item founded by agent and returns it with its
// position. The initial snapshot is fetched before the store is touched;
// a failed fetch leaves the snapshot empty for the next refresh.
func (s *Service) CreateItem(ctx context.Context, agent core.Agent, in CreateInput) (core.Item, int, error) {
	if !agent.Authenticated() {
		return core.Item{}, 0, core.ErrUnauthorized
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return core.Item{}, 0, core.Invalid("title is required")
	}
	githubURL := strings.TrimSpace(in.GithubURL)
	if githubURL == "" {
		return core.Item{}, 0, core.Invalid("githubUrl is required")
	}
	ref, err := validateGithubURL(githubURL)
	if err != nil {
		return core.Item{}, 0, err
	}
	status := in.Status
	if status == "" {
		status = core.StatusTodo
	}
	if !status.IsValid() {
		return core.Item{}, 0, invalidStatus()
	}

	ctx = logging.WithAgent(ctx, agent.BTCAddress)
	now := s.now().UTC()
	item := core.Item{
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		GithubURL:    githubURL,
		Ref:          &ref,
		Founder:      agent.Founder(),
		Contributors: []core.Contributor{agent.Contributor()},
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res := core.FetchFor(ctx, s.fetcher, githubURL)
	switch res.Outcome {
	case core.Fetched:
		item.ApplySnapshot(res.Snapshot, now)
	case core.FetchFailed:
		s.log.Debug().Ctx(ctx).Err(res.Err).Str("url", githubURL).Msg("initial snapshot fetch failed")
	}

	var position int
	_, _, err = s.store.Mutate(ctx, func(c *core.Collection) error {
		item.ID = c.FreshID(s.newID)
		c.Items = append(c.Items, item)
		position = len(c.Items) - 1
		return nil
	})
	if err != nil {
		return core.Item{}, 0, writeError(err)
	}

	s.record(ctx, eventlog.Event{
		Type:      eventlog.ItemCreated,
		Agent:     actor(agent),
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Data: map[string]any{
			"githubUrl": item.GithubURL,
			"status":    string(item.Status),
		},
	})

	return item, position, nil
}

// UpdateItem applies in to the item and adds agent as a contributor.
func (s *Service) UpdateItem(ctx context.Context, agent core.Agent, id string, in UpdateInput) (core.Item, error) {
	if !agent.Authenticated() {
		return core.Item{}, core.ErrUnauthorized
	}

	var title, description, githubURL string
	var ref core.Ref
	if in.Title != nil {
		title = strings.TrimSpace(*in.Title)
		if title == "" {
			return core.Item{}, core.Invalid("title cannot be empty")
		}
	}
	if in.Description != nil {
		description = strings.TrimSpace(*in.Description)
	}
	if in.GithubURL != nil {
		githubURL = strings.TrimSpace(*in.GithubURL)
		if githubURL != "" {
			var err error
			if ref, err = validateGithubURL(githubURL); err != nil {
				return core.Item{}, err
			}
		}
	}
	if in.Status != nil && !in.Status.IsValid() {
		return core.Item{}, invalidStatus()
	}

	ctx = logging.WithAgent(ctx, agent.BTCAddress)
	now := s.now().UTC()

	var fetched core.FetchResult
	if githubURL != "" {
		fetched = core.FetchFor(ctx, s.fetcher, githubURL)
		if fetched.Outcome == core.FetchFailed {
			s.log.Debug().Ctx(ctx).Err(fetched.Err).Str("url", githubURL).Msg("snapshot fetch failed")
		}
	}

	var (
		updated    core.Item
		changed    []string
		prevStatus core.Status
	)
	_, _, err := s.store.Mutate(ctx, func(c *core.Collection) error {
		idx := c.Index(id)
		if idx < 0 {
			return core.ErrItemNotFound
		}
		it := &c.Items[idx]
		prevStatus = it.Status

		if in.Title != nil && title != it.Title {
			it.Title = title
			changed = append(changed, "title")
		}
		if in.Description != nil && description != it.Description {
			it.Description = description
			changed = append(changed, "description")
		}
		if in.Status != nil && *in.Status != it.Status {
			it.Status = *in.Status
			changed = append(changed, "status")
		}
		if in.GithubURL != nil && githubURL != it.GithubURL {
			it.GithubURL = githubURL
			it.Ref = nil
			it.Snapshot = nil
			if githubURL != "" {
				it.Ref = &ref
				if fetched.Outcome == core.Fetched {
					it.ApplySnapshot(fetched.Snapshot, now)
				}
			}
			changed = append(changed, "githubUrl")
		}
		if it.Status != prevStatus && !slices.Contains(changed, "status") {
			changed = append(changed, "status")
		}

		contributorAdded := it.AddContributor(agent.Contributor())
		if len(changed) > 0 || contributorAdded {
			it.UpdatedAt = now
		}

		updated = it.Clone()
		return nil
	})
	if err != nil {
		return core.Item{}, writeError(err)
	}

	if len(changed) == 0 {
		return updated, nil
	}

	evs := []eventlog.Event{{
		Type:      eventlog.ItemUpdated,
		Agent:     actor(agent),
		ItemID:    updated.ID,
		ItemTitle: updated.Title,
		Data:      map[string]any{"fields": changed},
	}}
	if updated.Status != prevStatus {
		evs = append(evs, eventlog.Event{
			Type:      eventlog.ItemStatusChanged,
			Agent:     actor(agent),
			ItemID:    updated.ID,
			ItemTitle: updated.Title,
			Data: map[string]any{
				"from": string(prevStatus),
				"to":   string(updated.Status),
			},
		})
	}
	s.record(ctx, evs...)

	return updated, nil
}

// DeleteItem removes the item and returns it.
func (s *Service) DeleteItem(ctx context.Context, agent core.Agent, id string) (core.Item, error) {
	if !agent.Authenticated() {
		return core.Item{}, core.ErrUnauthorized
	}

	ctx = logging.WithAgent(ctx, agent.BTCAddress)

	var removed core.Item
	_, _, err := s.store.Mutate(ctx, func(c *core.Collection) error {
		idx := c.Index(id)
		if idx < 0 {
			return core.ErrItemNotFound
		}
		removed = c.Items[idx]
		c.Items = slices.Delete(c.Items, idx, idx+1)
		return nil
	})
	if err != nil {
		return core.Item{}, writeError(err)
	}

	s.record(ctx, eventlog.Event{
		Type:      eventlog.ItemDeleted,
		Agent:     actor(agent),
		ItemID:    removed.ID,
		ItemTitle: removed.Title,
		Data:      map[string]any{"githubUrl": removed.GithubURL},
	})

	return removed, nil
}

// ReorderItems moves orderedIDs to the front in the given order and returns
// the new item order.
func (s *Service) ReorderItems(ctx context.Context, agent core.Agent, orderedIDs []string) ([]core.Item, error) {
	if !agent.Authenticated() {
		return nil, core.ErrUnauthorized
	}

	ctx = logging.WithAgent(ctx, agent.BTCAddress)

	next, _, err := s.store.Mutate(ctx, func(c *core.Collection) error {
		c.Reorder(orderedIDs)
		return nil
	})
	if err != nil {
		return nil, writeError(err)
	}

	s.record(ctx, eventlog.Event{
		Type:  eventlog.ItemReordered,
		Agent: actor(agent),
		Data:  map[string]any{"count": len(next.Items)},
	})

	return next.Items, nil
}

// Feed returns recent audit events.
func (s *Service) Feed(ctx context.Context, q eventlog.FeedQuery) ([]eventlog.Event, error) {
	evs, err := s.events.Feed(ctx, q)
	if err != nil {
		return nil, core.Internal("could not load events", err)
	}
	return evs, nil
}

// Mention is one message that references an item.
type Mention struct {
	Agent          messaging.Participant `json:"agent"`
	Recipient      messaging.Participant `json:"recipient,omitzero"`
	MessagePreview string                `json:"messagePreview"`
	MatchType      core.MatchType        `json:"matchType"`
	Timestamp      string                `json:"timestamp"`
}

// MentionReport lists the messages that reference one item, newest first.
type MentionReport struct {
	ItemID    string    `json:"itemId"`
	ItemTitle string    `json:"itemTitle"`
	Count     int       `json:"count"`
	Mentions  []Mention `json:"mentions"`
}

// QueryMentions matches the current working message set against one item
// without persisting anything. Count is the item's persisted mention counter,
// which can exceed the listed mentions once messages leave the archive.
func (s *Service) QueryMentions(ctx context.Context, itemID string) (MentionReport, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return MentionReport{}, err
	}

	live, _ := s.liveMessages(ctx)
	msgs := messaging.Merge(live, s.archivedMessages(ctx))

	mentions := make([]Mention, 0)
	for _, m := range msgs {
		mt := core.MatchMention(m.Preview, item)
		if mt == core.MatchNone {
			continue
		}
		mentions = append(mentions, Mention{
			Agent:          m.Agent,
			Recipient:      m.Recipient,
			MessagePreview: m.Preview,
			MatchType:      mt,
			Timestamp:      m.Timestamp,
		})
	}

	slices.SortStableFunc(mentions, func(a, b Mention) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})

	return MentionReport{
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Count:     item.Mentions.Count,
		Mentions:  mentions,
	}, nil
}

// liveMessages reads the live feed. A failure yields no messages.
func (s *Service) liveMessages(ctx context.Context) ([]messaging.Message, error) {
	if s.feed == nil {
		return nil, nil
	}
	msgs, err := s.feed.Messages(ctx)
	if err != nil {
		s.log.Debug().Ctx(ctx).Err(err).Msg("live message feed unavailable")
		return nil, err
	}
	return msgs, nil
}

func (s *Service) archivedMessages(ctx context.Context) []messaging.Message {
	msgs, err := s.archive.Messages(ctx)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("message archive unavailable")
		return nil
	}
	return msgs
}
