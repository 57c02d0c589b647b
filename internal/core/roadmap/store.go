package roadmap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/zeebo/blake3"
)

// ItemsKey is the storage key suffix of the item collection.
const ItemsKey = "items"

// Record is a loaded collection together with the version token it was read at.
type Record struct {
	Collection Collection
	Token      kv.Version
}

// CollectionStore arbitrates concurrent writers of the item collection with
// compare-and-set on a single record.
//
// Every write follows load, compute from the loaded copy, save with the
// token from that same load. Save never overwrites a record whose version
// moved since the load.
type CollectionStore struct {
	doc *kv.Doc[Collection]
	now func() time.Time
}

// NewCollectionStore binds the collection to "<prefix>items" in store.
func NewCollectionStore(store kv.Versioned, prefix string) *CollectionStore {
	return &CollectionStore{
		doc: kv.Document[Collection](store, prefix+ItemsKey),
		now: time.Now,
	}
}

// Load returns the current collection and its token. An absent record is
// an empty collection at kv.NoVersion.
func (s *CollectionStore) Load(ctx context.Context) (Record, error) {
	c, token, err := s.doc.Load(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("load collection: %w", err)
	}

	if token == kv.NoVersion {
		c = NewCollection()
	}
	if c.Items == nil {
		c.Items = []Item{}
	}

	return Record{Collection: c, Token: token}, nil
}

// Save commits next if the stored token still equals expected. When the
// item set is identical to what was loaded nothing is written and expected
// is returned, so the token only moves when items change. A lost race
// returns an error matching kv.ErrConflict, whether or not a write was
// needed.
func (s *CollectionStore) Save(ctx context.Context, next Collection, expected kv.Version) (kv.Version, error) {
	digest, err := Digest(next.Items)
	if err != nil {
		return kv.NoVersion, err
	}

	unchanged := (expected == kv.NoVersion && len(next.Items) == 0) ||
		(expected != kv.NoVersion && digest == next.Digest)
	if unchanged {
		if err := s.verify(ctx, expected); err != nil {
			return kv.NoVersion, fmt.Errorf("save collection: %w", err)
		}
		return expected, nil
	}

	if next.Version == 0 {
		next.Version = 1
	}
	next.Digest = digest
	next.UpdatedAt = s.now().UTC()

	token, err := s.doc.Save(ctx, next, expected)
	if err != nil {
		return kv.NoVersion, fmt.Errorf("save collection: %w", err)
	}
	return token, nil
}

// verify fails with a conflict when the stored token is no longer expected.
func (s *CollectionStore) verify(ctx context.Context, expected kv.Version) error {
	_, current, err := s.doc.Load(ctx)
	if err != nil {
		return err
	}
	if current != expected {
		return &kv.ConflictError{Key: s.doc.Key(), Expected: expected, Current: current}
	}
	return nil
}

// Mutate loads the collection, applies fn to a private copy and saves the
// result. A conflict is returned to the caller untouched; Mutate never
// retries. If fn returns an error nothing is written.
func (s *CollectionStore) Mutate(ctx context.Context, fn func(c *Collection) error) (Collection, kv.Version, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return Collection{}, kv.NoVersion, err
	}

	next := rec.Collection.Clone()
	if err := fn(&next); err != nil {
		return Collection{}, rec.Token, err
	}

	token, err := s.Save(ctx, next, rec.Token)
	if err != nil {
		return Collection{}, rec.Token, err
	}
	return next, token, nil
}

// Digest returns the hex BLAKE3 hash of the JSON encoding of items.
func Digest(items []Item) (string, error) {
	h := blake3.New()
	if err := json.NewEncoder(h).Encode(items); err != nil {
		return "", fmt.Errorf("digest items: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
