// Package index persists the (bucket, object key) to CID mapping that
// drives the gateway. The index is the CID reference counter: a CID is
// live while at least one row references it.
package index

import (
	"context"
	"time"
)

// Metadata is one live object row.
type Metadata struct {
	CID         string
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// Store is the index surface the object service depends on.
type Store interface {
	// Upsert inserts or replaces the row for (bucket, key), refreshing
	// cid, size, content type, and updated_at.
	Upsert(ctx context.Context, bucket, key, cid string, size int64, contentType string) error
	// Get returns the row for (bucket, key), or nil when absent.
	Get(ctx context.Context, bucket, key string) (*Metadata, error)
	// Delete removes the row for (bucket, key).
	Delete(ctx context.Context, bucket, key string) error
	// CIDRefCount returns how many rows reference the given CID.
	CIDRefCount(ctx context.Context, cid string) (int64, error)
	// FindShallowestEmptyAncestor returns the shallowest ancestor of key
	// (key itself included) under which no live row in bucket remains, or
	// "" when even key's own subtree is still populated.
	FindShallowestEmptyAncestor(ctx context.Context, bucket, key string) (string, error)
	// Ping verifies the index is reachable.
	Ping(ctx context.Context) error
	// Close releases the connection pool.
	Close() error
}
