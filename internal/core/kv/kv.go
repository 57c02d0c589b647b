package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry represents a raw KV entry with metadata.
type Entry struct {
	Key       string
	Value     json.RawMessage
	Version   Version
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KV is the interface for a persistent key-value store.
// Keys are strings, values are JSON-serializable.
// Get on a missing key returns an error wrapping sql.ErrNoRows.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
	GetRaw(ctx context.Context, key string) (Entry, error)
}

// Version is an opaque token identifying one committed value of a key.
// Backends choose the representation (row counter, ETag, ...); callers
// only compare tokens for equality and hand them back on write.
type Version string

// NoVersion is the token of a key that has never been written.
const NoVersion Version = ""

// ErrConflict is matched by every failed conditional write.
var ErrConflict = errors.New("version conflict")

// ConflictError reports a conditional write that lost the race.
// Current is empty when the backend cannot report it cheaply.
type ConflictError struct {
	Key      string
	Expected Version
	Current  Version
}

func (e *ConflictError) Error() string {
	if e.Current == NoVersion {
		return fmt.Sprintf("kv %q: version conflict (expected %q)", e.Key, e.Expected)
	}
	return fmt.Sprintf("kv %q: version conflict (expected %q, current %q)", e.Key, e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Versioned is a store that supports compare-and-set writes on whole values.
type Versioned interface {
	// GetVersioned deserializes the value at key into dest and returns its
	// version. A missing key returns NoVersion, a nil error, and leaves dest
	// untouched.
	GetVersioned(ctx context.Context, key string, dest any) (Version, error)

	// PutIfVersion writes value only if the stored version still equals
	// expected (NoVersion means the key must not exist yet). On success it
	// returns the new version. On mismatch it writes nothing and returns an
	// error matching ErrConflict.
	PutIfVersion(ctx context.Context, key string, value any, expected Version) (Version, error)
}
