package roadmap

import "context"

// Outcome distinguishes why a fetch did or did not produce a snapshot.
type Outcome int

const (
	// NotApplicable means the item has no parseable GitHub reference.
	NotApplicable Outcome = iota
	// FetchFailed means the provider was called and failed.
	FetchFailed
	// Fetched means Snapshot holds fresh data.
	Fetched
)

func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "not_applicable"
	case FetchFailed:
		return "fetch_failed"
	case Fetched:
		return "fetched"
	}
	return "unknown"
}

// FetchResult is the result of asking a provider for an item's snapshot.
type FetchResult struct {
	Outcome  Outcome
	Snapshot Snapshot
	Err      error
}

// SnapshotFetcher loads the current external state of a reference. It makes
// a single bounded attempt and keeps no state between calls.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, ref Ref) (Snapshot, error)
}

// FetchFor resolves rawURL and fetches its snapshot.
func FetchFor(ctx context.Context, f SnapshotFetcher, rawURL string) FetchResult {
	ref, ok := ParseGithubURL(rawURL)
	if !ok || f == nil {
		return FetchResult{Outcome: NotApplicable}
	}

	snap, err := f.FetchSnapshot(ctx, ref)
	if err != nil {
		return FetchResult{Outcome: FetchFailed, Err: newError(KindFetchFailed, "external fetch failed", err)}
	}

	return FetchResult{Outcome: Fetched, Snapshot: snap}
}
