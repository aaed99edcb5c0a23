// Package cachestore provides durable key/value persistence for downloaded
// item payloads plus an index of stored keys with size and expiry metadata.
//
// All operations are idempotent and Put overwrites wholesale. Failures are
// reported as *StorageError; callers are expected to degrade to "item
// unavailable locally" rather than treat them as fatal.
package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/praxishq/coursesync/internal/model"
)

// ErrStorage is the sentinel matched by errors.Is for any local persistence
// failure.
var ErrStorage = errors.New("cache storage failure")

// StorageError wraps a persistence failure with the operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cachestore %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

// IndexEntry is the per-key metadata surfaced for storage-usage reporting.
type IndexEntry struct {
	SizeBytes    int64
	ExpiresAt    time.Time
	LastAccessed time.Time
}

// Store is a SQLite-backed cache store. Safe for concurrent use; the
// underlying *sql.DB serializes writers.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the store at path.
func New(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, storageErr("open", path, err)
	}
	if err := ensureSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, storageErr("migrate", path, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wires a Store over an existing connection (used by tests and the
// admin CLI).
func NewWithDB(db *sql.DB) (*Store, error) {
	if err := ensureSchema(context.Background(), db); err != nil {
		return nil, storageErr("migrate", "", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the cached item stored under key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) (*model.CachedItem, error) {
	raw, err := s.GetRaw(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}
	var item model.CachedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, storageErr("decode", key, err)
	}
	return &item, nil
}

// Put stores item under key, overwriting any previous entry wholesale.
func (s *Store) Put(ctx context.Context, key string, item model.CachedItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return storageErr("encode", key, err)
	}
	size := item.SizeBytes
	if size == 0 {
		size = int64(len(raw))
	}
	return s.putRow(ctx, key, raw, size, item.ExpiresAt)
}

// GetRaw returns the opaque blob stored under key, or (nil, nil) when absent.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT Payload FROM CacheEntries WHERE Key = ?`, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get", key, err)
	}
	return raw, nil
}

// PutRaw stores an opaque blob under key with no expiry. Used for the
// membership baseline, which outlives individual item entries.
func (s *Store) PutRaw(ctx context.Context, key string, raw []byte) error {
	return s.putRow(ctx, key, raw, int64(len(raw)), time.Time{})
}

func (s *Store) putRow(ctx context.Context, key string, raw []byte, size int64, expiresAt time.Time) error {
	var expires any
	if !expiresAt.IsZero() {
		expires = expiresAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO CacheEntries (Key, Payload, SizeBytes, ExpiresAt, LastAccessed) VALUES (?,?,?,?,?)
		 ON CONFLICT(Key) DO UPDATE SET Payload = excluded.Payload, SizeBytes = excluded.SizeBytes,
		   ExpiresAt = excluded.ExpiresAt, LastAccessed = excluded.LastAccessed`,
		key, raw, size, expires, time.Now().UTC())
	if err != nil {
		return storageErr("put", key, err)
	}
	return nil
}

// Delete removes the entry under key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM CacheEntries WHERE Key = ?`, key); err != nil {
		return storageErr("delete", key, err)
	}
	return nil
}

// ListKeys returns every stored key with the given prefix.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT Key FROM CacheEntries WHERE Key LIKE ? || '%' ORDER BY Key`, prefix)
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storageErr("list", prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", prefix, err)
	}
	return keys, nil
}

// IndexMetadata returns size/expiry/last-access metadata for every key with
// the given prefix. This is the surface external storage-usage reporting is
// built on.
func (s *Store) IndexMetadata(ctx context.Context, prefix string) (map[string]IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT Key, SizeBytes, ExpiresAt, LastAccessed FROM CacheEntries WHERE Key LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, storageErr("index", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]IndexEntry)
	for rows.Next() {
		var (
			k       string
			entry   IndexEntry
			expires sql.NullTime
		)
		if err := rows.Scan(&k, &entry.SizeBytes, &expires, &entry.LastAccessed); err != nil {
			return nil, storageErr("index", prefix, err)
		}
		if expires.Valid {
			entry.ExpiresAt = expires.Time
		}
		out[k] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("index", prefix, err)
	}
	return out, nil
}

// Touch bumps LastAccessed for key so eviction tooling can order by recency.
// Touching an absent key is a no-op.
func (s *Store) Touch(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE CacheEntries SET LastAccessed = ? WHERE Key = ?`, time.Now().UTC(), key); err != nil {
		return storageErr("touch", key, err)
	}
	return nil
}

// EvictExpired deletes every entry whose expiry is in the past and returns
// the removed keys.
func (s *Store) EvictExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT Key FROM CacheEntries WHERE ExpiresAt IS NOT NULL AND ExpiresAt < ?`, now.UTC())
	if err != nil {
		return nil, storageErr("evict", "", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, storageErr("evict", "", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("evict", "", err)
	}
	rows.Close()

	if len(keys) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM CacheEntries WHERE ExpiresAt IS NOT NULL AND ExpiresAt < ?`, now.UTC()); err != nil {
		return nil, storageErr("evict", "", err)
	}
	return keys, nil
}

// DeletePrefix removes every entry under prefix and reports how many rows
// were deleted. Backs ClearAll(owner).
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM CacheEntries WHERE Key LIKE ? || '%'`, prefix)
	if err != nil {
		return 0, storageErr("clear", prefix, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
