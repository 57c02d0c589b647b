// Package pgstore is a PostgreSQL backend for versioned JSON documents. It
// lets several roadmap processes on different hosts share one collection.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colonyops/roadmap/internal/core/kv"
)

const schema = `
CREATE TABLE IF NOT EXISTS roadmap_documents (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres error codes that mean another writer won.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// Store implements kv.Versioned on a single PostgreSQL table.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and creates the table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// GetVersioned implements kv.Versioned.
func (s *Store) GetVersioned(ctx context.Context, key string, dest any) (kv.Version, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value, version FROM roadmap_documents WHERE key = $1`, key,
	).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return kv.NoVersion, nil
	}
	if err != nil {
		return kv.NoVersion, fmt.Errorf("get %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return kv.NoVersion, fmt.Errorf("decode %q: %w", key, err)
	}
	return formatVersion(version), nil
}

// PutIfVersion implements kv.Versioned with a single conditional statement.
func (s *Store) PutIfVersion(ctx context.Context, key string, value any, expected kv.Version) (kv.Version, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kv.NoVersion, fmt.Errorf("encode %q: %w", key, err)
	}

	if expected == kv.NoVersion {
		tag, err := s.pool.Exec(ctx,
			`INSERT INTO roadmap_documents (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO NOTHING`, key, data)
		if err != nil {
			return kv.NoVersion, s.writeError(ctx, key, expected, err)
		}
		if tag.RowsAffected() == 0 {
			return kv.NoVersion, s.conflict(ctx, key, expected)
		}
		return formatVersion(1), nil
	}

	current, ok := parseVersion(expected)
	if !ok {
		return kv.NoVersion, s.conflict(ctx, key, expected)
	}

	var next int64
	err = s.pool.QueryRow(ctx,
		`UPDATE roadmap_documents
		 SET value = $2, version = version + 1, updated_at = now()
		 WHERE key = $1 AND version = $3
		 RETURNING version`, key, data, current,
	).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return kv.NoVersion, s.conflict(ctx, key, expected)
	}
	if err != nil {
		return kv.NoVersion, s.writeError(ctx, key, expected, err)
	}
	return formatVersion(next), nil
}

func (s *Store) writeError(ctx context.Context, key string, expected kv.Version, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure:
			return s.conflict(ctx, key, expected)
		}
	}
	return fmt.Errorf("put %q: %w", key, err)
}

func (s *Store) conflict(ctx context.Context, key string, expected kv.Version) error {
	cerr := &kv.ConflictError{Key: key, Expected: expected}
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM roadmap_documents WHERE key = $1`, key).Scan(&version)
	if err == nil {
		cerr.Current = formatVersion(version)
	}
	return cerr
}

func formatVersion(v int64) kv.Version {
	return kv.Version(strconv.FormatInt(v, 10))
}

func parseVersion(v kv.Version) (int64, bool) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
