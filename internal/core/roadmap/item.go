// Package roadmap defines the roadmap item domain types and the pure
// transformations applied to them by writers and background scanners.
package roadmap

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an item.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// DefaultStaleAfter is how long a snapshot is trusted before it is re-fetched.
const DefaultStaleAfter = time.Hour

// Snapshot is the normalized external state of an item's GitHub reference.
type Snapshot struct {
	Kind      RefKind   `json:"type"`
	Number    int       `json:"number,omitempty"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Merged    bool      `json:"merged"`
	Assignees []string  `json:"assignees"`
	Labels    []string  `json:"labels"`
	Stars     *int      `json:"stars,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Terminal reports whether the external state means the work is finished.
func (s Snapshot) Terminal() bool {
	return s.Merged || s.State == "closed" || s.State == "archived"
}

// Contributor is an identity snapshot of someone who touched an item.
// Address is the agent's BTC address, or "github:<login>" for people
// discovered through GitHub.
type Contributor struct {
	Address     string `json:"btcAddress"`
	DisplayName string `json:"displayName"`
	AgentID     *int64 `json:"agentId,omitempty"`
	GithubLogin string `json:"githubLogin,omitempty"`
}

// Founder is the contributor who created the item.
type Founder struct {
	Contributor
	ProfileURL string `json:"profileUrl"`
}

// Mentions tracks how often an item was referenced in agent messages.
// LastSeen is the newest message timestamp already counted.
type Mentions struct {
	Count    int    `json:"count"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// NewItemID returns a fresh item id.
func NewItemID() string {
	return "r_" + uuid.NewString()[:8]
}

// Item is one unit of roadmap work.
type Item struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	GithubURL    string        `json:"githubUrl"`
	Ref          *Ref          `json:"externalRef,omitempty"`
	Snapshot     *Snapshot     `json:"githubData"`
	Founder      Founder       `json:"founder"`
	Contributors []Contributor `json:"contributors"`
	Status       Status        `json:"status"`
	Mentions     Mentions      `json:"mentions"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the item so that transforms never alias
// slices of a loaded snapshot.
func (it Item) Clone() Item {
	out := it
	out.Contributors = slices.Clone(it.Contributors)
	if it.Ref != nil {
		ref := *it.Ref
		out.Ref = &ref
	}
	if it.Snapshot != nil {
		snap := *it.Snapshot
		snap.Assignees = slices.Clone(it.Snapshot.Assignees)
		snap.Labels = slices.Clone(it.Snapshot.Labels)
		if it.Snapshot.Stars != nil {
			stars := *it.Snapshot.Stars
			snap.Stars = &stars
		}
		out.Snapshot = &snap
	}
	return out
}

// IsStale reports whether the item's snapshot needs re-fetching at now.
// Items without a snapshot are always stale.
func (it Item) IsStale(now time.Time, staleAfter time.Duration) bool {
	if it.Snapshot == nil || it.Snapshot.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(it.Snapshot.FetchedAt) >= staleAfter
}

// HasContributor reports whether address is already listed.
func (it Item) HasContributor(address string) bool {
	return slices.ContainsFunc(it.Contributors, func(c Contributor) bool {
		return strings.EqualFold(c.Address, address)
	})
}

// AddContributor appends c unless a contributor with the same address is
// already present. It returns true when the list changed.
func (it *Item) AddContributor(c Contributor) bool {
	if c.Address == "" || it.HasContributor(c.Address) {
		return false
	}
	it.Contributors = append(it.Contributors, c)
	return true
}

// ApplySnapshot stores snap on the item and advances the status to done when
// the external state is terminal. A done item never moves back. Snapshots
// older than the current one are ignored so fetchedAt never decreases.
// It returns true if the item changed.
func (it *Item) ApplySnapshot(snap Snapshot, now time.Time) bool {
	if it.Snapshot != nil && snap.FetchedAt.Before(it.Snapshot.FetchedAt) {
		return false
	}

	it.Snapshot = &snap
	if it.Status != StatusDone && snap.Terminal() {
		it.Status = StatusDone
	}
	it.UpdatedAt = now
	return true
}

// Collection is the whole item set persisted as a single record.
type Collection struct {
	Version   int       `json:"version"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	Digest    string    `json:"digest,omitempty"`
}

// NewCollection returns the empty collection used before the first write.
func NewCollection() Collection {
	return Collection{Version: 1, Items: []Item{}}
}

// Clone deep-copies the collection.
func (c Collection) Clone() Collection {
	out := c
	out.Items = make([]Item, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = it.Clone()
	}
	return out
}

// FreshID draws ids from next until one is not already taken.
func (c Collection) FreshID(next func() string) string {
	for {
		id := next()
		if c.Index(id) < 0 {
			return id
		}
	}
}

// Index returns the position of id, or -1.
func (c Collection) Index(id string) int {
	return slices.IndexFunc(c.Items, func(it Item) bool { return it.ID == id })
}

// Find returns the item with id.
func (c Collection) Find(id string) (Item, bool) {
	idx := c.Index(id)
	if idx < 0 {
		return Item{}, false
	}
	return c.Items[idx], true
}

// Reorder moves the listed ids to the front in the given order. Unknown and
// repeated ids are ignored; unlisted items follow in their prior order.
func (c *Collection) Reorder(orderedIDs []string) {
	byID := make(map[string]Item, len(c.Items))
	for _, it := range c.Items {
		byID[it.ID] = it
	}

	next := make([]Item, 0, len(c.Items))
	for _, id := range orderedIDs {
		if it, ok := byID[id]; ok {
			next = append(next, it)
			delete(byID, id)
		}
	}
	for _, it := range c.Items {
		if _, ok := byID[it.ID]; ok {
			next = append(next, it)
		}
	}

	c.Items = next
}
