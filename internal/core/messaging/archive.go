package messaging

import (
	"context"
	"fmt"

	"github.com/colonyops/roadmap/internal/core/kv"
)

const (
	// ArchiveKey is the storage key suffix of the message archive.
	ArchiveKey = "message-archive"

	// DefaultArchiveLimit bounds the number of archived messages.
	DefaultArchiveLimit = 2000
)

type archiveDoc struct {
	Messages []Message `json:"messages"`
}

// Archive is a bounded, newest-first record of messages seen on the live
// feed. It exists so mention counts survive after the feed rotates.
type Archive struct {
	doc   *kv.Doc[archiveDoc]
	limit int
}

// NewArchive binds the archive to "<prefix>message-archive".
func NewArchive(store kv.Versioned, prefix string, limit int) *Archive {
	if limit <= 0 {
		limit = DefaultArchiveLimit
	}
	return &Archive{
		doc:   kv.Document[archiveDoc](store, prefix+ArchiveKey),
		limit: limit,
	}
}

// Messages returns the archived messages, newest first.
func (a *Archive) Messages(ctx context.Context) ([]Message, error) {
	d, _, err := a.doc.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load message archive: %w", err)
	}
	return d.Messages, nil
}

// Absorb merges live messages into the archive and returns how many were
// new. The write is conditional; a concurrent writer makes it fail with an
// error matching kv.ErrConflict and nothing is stored.
func (a *Archive) Absorb(ctx context.Context, live []Message) (int, error) {
	d, version, err := a.doc.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load message archive: %w", err)
	}

	known := Merge(nil, d.Messages)
	merged := Merge(live, d.Messages)
	added := len(merged) - len(known)
	if added == 0 {
		return 0, nil
	}

	SortNewestFirst(merged)
	if len(merged) > a.limit {
		merged = merged[:a.limit]
	}

	if _, err := a.doc.Save(ctx, archiveDoc{Messages: merged}, version); err != nil {
		return 0, fmt.Errorf("save message archive: %w", err)
	}
	return added, nil
}
