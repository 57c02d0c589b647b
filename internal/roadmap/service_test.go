package roadmap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colonyops/roadmap/internal/core/eventlog"
	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/core/messaging"
	core "github.com/colonyops/roadmap/internal/core/roadmap"
	"github.com/colonyops/roadmap/internal/data/db"
	"github.com/colonyops/roadmap/internal/data/stores"
	"github.com/colonyops/roadmap/internal/roadmap/github"
)

const testPrefix = "roadmap:"

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	kv           *stores.KVStore
	store        *interceptStore
	fetcher      *fakeFetcher
	feed         *fakeFeed
	contributors *fakeContributors
	timeline     *fakeTimeline
	agent        core.Agent
	other        core.Agent
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	kvStore := stores.NewKVStore(database)
	agentID := int64(7)

	f := &fixture{
		kv:           kvStore,
		store:        &interceptStore{Versioned: kvStore},
		feed:         &fakeFeed{},
		contributors: &fakeContributors{logins: map[string][]string{}},
		timeline:     &fakeTimeline{events: map[string][]github.TimelineEvent{}},
		agent:        core.Agent{BTCAddress: "bc1qowl", DisplayName: "Owl", AgentID: &agentID},
		other:        core.Agent{BTCAddress: "bc1qfox", DisplayName: "Fox"},
		now:          testStart,
	}
	f.fetcher = &fakeFetcher{
		state: map[string]string{},
		fail:  map[string]bool{},
		calls: map[string]int{},
		now:   func() time.Time { return f.now },
	}

	f.svc = New(Deps{
		Store:  f.store,
		KV:     kvStore,
		Prefix: testPrefix,
		Identity: fakeIdentity{
			f.agent.BTCAddress: f.agent,
			f.other.BTCAddress: f.other,
		},
		Fetcher:      f.fetcher,
		Feed:         f.feed,
		Contributors: f.contributors,
		Timeline:     f.timeline,
		Workers:      2,
	})
	f.svc.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) create(t *testing.T, title, url string) core.Item {
	t.Helper()
	item, _, err := f.svc.CreateItem(context.Background(), f.agent, CreateInput{Title: title, GithubURL: url})
	require.NoError(t, err)
	return item
}

func (f *fixture) items(t *testing.T) []core.Item {
	t.Helper()
	items, err := f.svc.LoadItems(context.Background())
	require.NoError(t, err)
	return items
}

func (f *fixture) item(t *testing.T, id string) core.Item {
	t.Helper()
	it, err := f.svc.GetItem(context.Background(), id)
	require.NoError(t, err)
	return it
}

func (f *fixture) events(t *testing.T, typ eventlog.Type) []eventlog.Event {
	t.Helper()
	evs, err := f.svc.Feed(context.Background(), eventlog.FeedQuery{Type: typ, Limit: eventlog.DefaultMaxEvents})
	require.NoError(t, err)
	return evs
}

// mutate writes the item collection directly, bypassing the service.
func (f *fixture) mutate(t *testing.T, fn func(c *core.Collection)) {
	t.Helper()
	_, _, err := core.NewCollectionStore(f.kv, testPrefix).Mutate(context.Background(), func(c *core.Collection) error {
		fn(c)
		return nil
	})
	require.NoError(t, err)
}

// raceItems makes the next conditional write of the item collection lose
// to a competing writer that runs fn first.
func (f *fixture) raceItems(t *testing.T, fn func(c *core.Collection)) {
	t.Helper()
	f.store.before(testPrefix+core.ItemsKey, func() {
		f.mutate(t, fn)
	})
}

// raceItemsAfterLoad lets a competing writer run fn right after the next
// read of the item collection, before the reader gets to write or verify.
func (f *fixture) raceItemsAfterLoad(t *testing.T, fn func(c *core.Collection)) {
	t.Helper()
	f.store.afterRead(testPrefix+core.ItemsKey, func() {
		f.mutate(t, fn)
	})
}

type interceptStore struct {
	kv.Versioned

	mu       sync.Mutex
	key      string
	hook     func()
	readKey  string
	readHook func()
}

func (s *interceptStore) afterRead(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readKey, s.readHook = key, fn
}

func (s *interceptStore) GetVersioned(ctx context.Context, key string, dest any) (kv.Version, error) {
	v, err := s.Versioned.GetVersioned(ctx, key, dest)

	s.mu.Lock()
	hook := s.readHook
	if key == s.readKey {
		s.readHook = nil
	} else {
		hook = nil
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return v, err
}

func (s *interceptStore) before(key string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key, s.hook = key, fn
}

func (s *interceptStore) PutIfVersion(ctx context.Context, key string, value any, expected kv.Version) (kv.Version, error) {
	s.mu.Lock()
	hook := s.hook
	if key == s.key {
		s.hook = nil
	} else {
		hook = nil
	}
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return s.Versioned.PutIfVersion(ctx, key, value, expected)
}

type fakeIdentity map[string]core.Agent

func (f fakeIdentity) Resolve(_ context.Context, address string) (core.Agent, bool) {
	a, ok := f[address]
	return a, ok
}

type fakeFetcher struct {
	mu    sync.Mutex
	state map[string]string
	fail  map[string]bool
	calls map[string]int
	now   func() time.Time
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, ref core.Ref) (core.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ref.String()
	f.calls[key]++
	if f.fail[key] {
		return core.Snapshot{}, errors.New("status 502")
	}

	state := f.state[key]
	if state == "" {
		state = "open"
	}
	return core.Snapshot{
		Kind:      ref.Kind,
		Number:    ref.Number,
		Title:     key,
		State:     state,
		Assignees: []string{},
		Labels:    []string{},
		FetchedAt: f.now(),
	}, nil
}

func (f *fakeFetcher) set(key, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[key] = state
}

func (f *fakeFetcher) failing(key string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key] = fail
}

func (f *fakeFetcher) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fakeFeed struct {
	msgs []messaging.Message
	err  error
}

func (f *fakeFeed) Messages(context.Context) ([]messaging.Message, error) {
	return f.msgs, f.err
}

type fakeContributors struct {
	mu     sync.Mutex
	logins map[string][]string
	fail   bool
}

func (f *fakeContributors) Contributors(_ context.Context, ref core.Ref) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("status 500")
	}
	return f.logins[ref.String()], nil
}

type fakeTimeline struct {
	mu     sync.Mutex
	events map[string][]github.TimelineEvent
}

func (f *fakeTimeline) Timeline(_ context.Context, ref core.Ref) ([]github.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs, ok := f.events[ref.String()]
	if !ok {
		return nil, errors.New("status 404")
	}
	return evs, nil
}

func (f *fakeTimeline) set(key string, evs ...github.TimelineEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[key] = evs
}
