package kv

import (
	"context"
	"time"
)

// TypedKV provides type-safe access to a KV store for a specific type T.
type TypedKV[T any] struct {
	store  KV
	prefix string
}

// Scoped returns a TypedKV[T] that prefixes all keys with "namespace:".
func Scoped[T any](store KV, namespace string) *TypedKV[T] {
	return &TypedKV[T]{
		store:  store,
		prefix: namespace + ":",
	}
}

// Get retrieves and deserializes a value by key.
func (t *TypedKV[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	if err := t.store.Get(ctx, t.prefix+key, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Set stores a value with no expiry.
func (t *TypedKV[T]) Set(ctx context.Context, key string, value T) error {
	return t.store.Set(ctx, t.prefix+key, value)
}

// SetTTL stores a value that expires after the given duration.
func (t *TypedKV[T]) SetTTL(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.store.SetTTL(ctx, t.prefix+key, value, ttl)
}

// Delete removes a key.
func (t *TypedKV[T]) Delete(ctx context.Context, key string) error {
	return t.store.Delete(ctx, t.prefix+key)
}

// Has returns whether a key exists.
func (t *TypedKV[T]) Has(ctx context.Context, key string) (bool, error) {
	return t.store.Has(ctx, t.prefix+key)
}

// Doc is a single JSON document of type T stored under one key of a
// Versioned store. Every write is conditioned on the version observed by
// the matching Load.
type Doc[T any] struct {
	store Versioned
	key   string
}

// Document returns a Doc[T] bound to key.
func Document[T any](store Versioned, key string) *Doc[T] {
	return &Doc[T]{store: store, key: key}
}

// Key returns the storage key of the document.
func (d *Doc[T]) Key() string { return d.key }

// Load returns the current value and its version. A document that was
// never written yields the zero T and NoVersion.
func (d *Doc[T]) Load(ctx context.Context) (T, Version, error) {
	var v T
	version, err := d.store.GetVersioned(ctx, d.key, &v)
	if err != nil {
		var zero T
		return zero, NoVersion, err
	}
	return v, version, nil
}

// Save commits value if the document is still at expected.
func (d *Doc[T]) Save(ctx context.Context, value T, expected Version) (Version, error) {
	return d.store.PutIfVersion(ctx, d.key, value, expected)
}
