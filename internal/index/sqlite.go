package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/ipfsgate/ipfsgate/internal/mfs"
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	timeFormat = "2006-01-02T15:04:05.000Z"

	// maxConns bounds the pool; SQLite serializes writers anyway.
	maxConns = 8
)

// SQLiteStore implements Store on a single SQLite file. The database is
// opened with write-ahead journaling and a 30-second busy timeout so that
// concurrent handlers queue on the single writer instead of failing.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if missing) the database at path and
// applies migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// migrate applies PRAGMAs and the schema. Safe to run on every startup.
func (s *SQLiteStore) migrate() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS metadata (
			cid          TEXT NOT NULL,
			bucket       TEXT NOT NULL,
			object_key   TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
			size         INTEGER NOT NULL,
			updated_at   TIMESTAMP NOT NULL,

			PRIMARY KEY (bucket, object_key)
		);

		CREATE INDEX IF NOT EXISTS idx_metadata_cid ON metadata(cid);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (1, ?)`,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting schema version: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the schema is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM schema_version LIMIT 1`,
	).Scan(&one)
	if err != nil {
		return fmt.Errorf("pinging index: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the row for (bucket, key).
func (s *SQLiteStore) Upsert(ctx context.Context, bucket, key, cid string, size int64, contentType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (cid, bucket, object_key, content_type, size, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, object_key) DO UPDATE SET
		   cid = excluded.cid,
		   size = excluded.size,
		   content_type = excluded.content_type,
		   updated_at = excluded.updated_at`,
		cid, bucket, key, contentType, size,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("upserting metadata for %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get returns the row for (bucket, key), or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) (*Metadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cid, bucket, object_key, content_type, size, updated_at
		 FROM metadata WHERE bucket = ? AND object_key = ?`,
		bucket, key,
	)

	var m Metadata
	var updatedAt string
	err := row.Scan(&m.CID, &m.Bucket, &m.Key, &m.ContentType, &m.Size, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting metadata for %s/%s: %w", bucket, key, err)
	}
	m.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return &m, nil
}

// Delete removes the row for (bucket, key).
func (s *SQLiteStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM metadata WHERE bucket = ? AND object_key = ?`,
		bucket, key,
	)
	if err != nil {
		return fmt.Errorf("deleting metadata for %s/%s: %w", bucket, key, err)
	}
	return nil
}

// CIDRefCount returns how many rows reference the given CID.
func (s *SQLiteStore) CIDRefCount(ctx context.Context, cid string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM metadata WHERE cid = ?`, cid,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting references for cid %s: %w", cid, err)
	}
	return count, nil
}

// FindShallowestEmptyAncestor walks the ancestors of key from deepest to
// shallowest, issuing one prefix-count query per level, and returns the
// shallowest ancestor with no remaining rows under it. SQLite lacks the
// string primitives to collapse the walk into a single statement, so this
// issues one query per level.
func (s *SQLiteStore) FindShallowestEmptyAncestor(ctx context.Context, bucket, key string) (string, error) {
	shallowest := ""
	for _, ancestor := range mfs.Ancestors(key) {
		var count int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM metadata WHERE bucket = ? AND object_key LIKE ?`,
			bucket, ancestor+"/%",
		).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("counting entries under %s/%s: %w", bucket, ancestor, err)
		}
		if count != 0 {
			break
		}
		shallowest = ancestor
	}
	return shallowest, nil
}
