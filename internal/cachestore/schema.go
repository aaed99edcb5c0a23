package cachestore

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS CacheEntries (
    Key          TEXT PRIMARY KEY,
    Payload      BLOB NOT NULL,
    SizeBytes    INTEGER NOT NULL DEFAULT 0,
    ExpiresAt    TIMESTAMP,
    LastAccessed TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS CacheEntriesExpiry ON CacheEntries (ExpiresAt);
`

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
