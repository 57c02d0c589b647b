package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/colonyops/roadmap/internal/core/kv"
	"github.com/colonyops/roadmap/internal/data/db"
)

// KVStore implements kv.KV and kv.Versioned using SQLite.
// Each row carries an integer version that is bumped on every write;
// conditional writes compare it inside the UPDATE statement.
type KVStore struct {
	db *db.DB
}

var (
	_ kv.KV        = (*KVStore)(nil)
	_ kv.Versioned = (*KVStore)(nil)
)

// NewKVStore creates a new SQLite-backed KV store.
func NewKVStore(db *db.DB) *KVStore {
	return &KVStore{db: db}
}

type kvRow struct {
	key       string
	value     []byte
	version   int64
	expiresAt sql.NullInt64
	createdAt int64
	updatedAt int64
}

func (r kvRow) expired(now time.Time) bool {
	return r.expiresAt.Valid && r.expiresAt.Int64 < now.UnixNano()
}

func (s *KVStore) getRow(ctx context.Context, key string) (kvRow, error) {
	var row kvRow
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT key, value, version, expires_at, created_at, updated_at FROM kv_store WHERE key = ?`,
		key,
	).Scan(&row.key, &row.value, &row.version, &row.expiresAt, &row.createdAt, &row.updatedAt)
	if err != nil {
		return kvRow{}, err
	}

	if row.expired(time.Now()) {
		_ = s.deleteIfVersion(ctx, key, row.version)
		return kvRow{}, sql.ErrNoRows
	}

	return row, nil
}

// Get retrieves and deserializes a value by key.
// Returns an error wrapping sql.ErrNoRows if the key does not exist.
// Expired entries are lazily deleted and treated as missing.
func (s *KVStore) Get(ctx context.Context, key string, dest any) error {
	row, err := s.getRow(ctx, key)
	if err != nil {
		return fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(row.value, dest); err != nil {
		return fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}

	return nil
}

// Set stores a value with no expiry.
func (s *KVStore) Set(ctx context.Context, key string, value any) error {
	return s.set(ctx, key, value, sql.NullInt64{})
}

// SetTTL stores a value that expires after the given duration.
func (s *KVStore) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).UnixNano()
	return s.set(ctx, key, value, sql.NullInt64{Int64: expiresAt, Valid: true})
}

// Delete removes a key.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

// Has returns whether a key exists (and is not expired).
func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.getRow(ctx, key)
	if IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return true, nil
}

// ListKeys returns all non-expired keys in sorted order.
func (s *KVStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT key FROM kv_store WHERE expires_at IS NULL OR expires_at >= ? ORDER BY key`,
		time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv list keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetRaw retrieves a raw KV entry with metadata.
// Returns an error wrapping sql.ErrNoRows if the key does not exist.
func (s *KVStore) GetRaw(ctx context.Context, key string) (kv.Entry, error) {
	row, err := s.getRow(ctx, key)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("kv get raw %q: %w", key, err)
	}

	entry := kv.Entry{
		Key:       row.key,
		Value:     json.RawMessage(row.value),
		Version:   formatVersion(row.version),
		CreatedAt: time.Unix(0, row.createdAt),
		UpdatedAt: time.Unix(0, row.updatedAt),
	}

	if row.expiresAt.Valid {
		t := time.Unix(0, row.expiresAt.Int64)
		entry.ExpiresAt = &t
	}

	return entry, nil
}

// SweepExpired deletes all entries whose TTL has passed.
func (s *KVStore) SweepExpired(ctx context.Context) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("kv sweep expired: %w", err)
	}
	return nil
}

// GetVersioned implements kv.Versioned.
func (s *KVStore) GetVersioned(ctx context.Context, key string, dest any) (kv.Version, error) {
	row, err := s.getRow(ctx, key)
	if IsNotFoundError(err) {
		return kv.NoVersion, nil
	}
	if err != nil {
		return kv.NoVersion, fmt.Errorf("kv get %q: %w", key, err)
	}

	if err := json.Unmarshal(row.value, dest); err != nil {
		return kv.NoVersion, fmt.Errorf("kv get %q unmarshal: %w", key, err)
	}

	return formatVersion(row.version), nil
}

// PutIfVersion implements kv.Versioned.
func (s *KVStore) PutIfVersion(ctx context.Context, key string, value any, expected kv.Version) (kv.Version, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kv.NoVersion, fmt.Errorf("kv put %q marshal: %w", key, err)
	}

	now := time.Now().UnixNano()

	if expected == kv.NoVersion {
		// An expired row is as good as absent.
		_, err := s.db.Conn().ExecContext(ctx,
			`DELETE FROM kv_store WHERE key = ? AND expires_at IS NOT NULL AND expires_at < ?`,
			key, now,
		)
		if err != nil {
			return kv.NoVersion, fmt.Errorf("kv put %q: %w", key, err)
		}

		res, err := s.db.Conn().ExecContext(ctx,
			`INSERT INTO kv_store (key, value, version, expires_at, created_at, updated_at)
			 VALUES (?, ?, 1, NULL, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, data, now, now,
		)
		if IsBusyError(err) {
			return kv.NoVersion, s.conflict(ctx, key, expected)
		}
		if err != nil {
			return kv.NoVersion, fmt.Errorf("kv put %q: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return kv.NoVersion, s.conflict(ctx, key, expected)
		}
		return formatVersion(1), nil
	}

	want, err := parseVersion(expected)
	if err != nil {
		return kv.NoVersion, s.conflict(ctx, key, expected)
	}

	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE kv_store SET value = ?, version = version + 1, expires_at = NULL, updated_at = ?
		 WHERE key = ? AND version = ?`,
		data, now, key, want,
	)
	if IsBusyError(err) {
		// Another writer holds the lock; treat as a lost race.
		return kv.NoVersion, s.conflict(ctx, key, expected)
	}
	if err != nil {
		return kv.NoVersion, fmt.Errorf("kv put %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return kv.NoVersion, s.conflict(ctx, key, expected)
	}

	return formatVersion(want + 1), nil
}

func (s *KVStore) conflict(ctx context.Context, key string, expected kv.Version) error {
	cerr := &kv.ConflictError{Key: key, Expected: expected}

	var current int64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT version FROM kv_store WHERE key = ?`, key).Scan(&current)
	if err == nil {
		cerr.Current = formatVersion(current)
	}

	return cerr
}

func (s *KVStore) deleteIfVersion(ctx context.Context, key string, version int64) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM kv_store WHERE key = ? AND version = ?`, key, version)
	return err
}

func (s *KVStore) set(ctx context.Context, key string, value any, expiresAt sql.NullInt64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv set %q marshal: %w", key, err)
	}

	now := time.Now().UnixNano()
	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO kv_store (key, value, version, expires_at, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		     value = excluded.value,
		     version = kv_store.version + 1,
		     expires_at = excluded.expires_at,
		     updated_at = excluded.updated_at`,
		key, data, expiresAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}

	return nil
}

func formatVersion(v int64) kv.Version {
	return kv.Version(strconv.FormatInt(v, 10))
}

func parseVersion(v kv.Version) (int64, error) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, errors.New("malformed version token")
	}
	return n, nil
}
