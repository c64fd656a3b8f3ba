// Package handlers implements the S3-compatible HTTP operations backed by
// the CAS node and the metadata index.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/ipfsgate/ipfsgate/internal/cas"
	"github.com/ipfsgate/ipfsgate/internal/config"
	"github.com/ipfsgate/ipfsgate/internal/index"
	"github.com/ipfsgate/ipfsgate/internal/metrics"
	"github.com/ipfsgate/ipfsgate/internal/mfs"
	"github.com/ipfsgate/ipfsgate/internal/multipart"
)

// defaultContentType is used when no content type can be resolved.
const defaultContentType = "application/octet-stream"

// backgroundTimeout bounds the CAS and index calls issued from spawned
// cleanup tasks, which have no request deadline to inherit.
const backgroundTimeout = 30 * time.Second

// errObjectNotFound distinguishes a missing row from an index failure.
var errObjectNotFound = errors.New("object not found")

// Handler carries the dependencies shared by all S3 operations.
type Handler struct {
	logger  *slog.Logger
	store   index.Store
	cas     *cas.Client
	uploads *multipart.Registry

	mode             config.OperationMode
	gateway          string
	folderPrefix     string
	trimEmptyFolders bool
	autoMime         bool
	privatePrefixes  []netip.Prefix
}

// New builds a Handler from the loaded configuration and its dependencies.
func New(cfg *config.Config, logger *slog.Logger, store index.Store, casClient *cas.Client, uploads *multipart.Registry) (*Handler, error) {
	prefixes, err := cfg.PrivatePrefixes()
	if err != nil {
		return nil, err
	}
	return &Handler{
		logger:           logger,
		store:            store,
		cas:              casClient,
		uploads:          uploads,
		mode:             cfg.Mode,
		gateway:          strings.TrimRight(cfg.Gateway, "/"),
		folderPrefix:     cfg.FolderPrefix,
		trimEmptyFolders: cfg.Experimental.TrimEmptyFolders,
		autoMime:         cfg.Experimental.AutoMime,
		privatePrefixes:  prefixes,
	}, nil
}

// etagValue returns a weak ETag for a CID. Weak because the same bytes
// re-added under a different chunking profile could yield a different CID.
func etagValue(cid string) string {
	return "W/" + cid
}

// resolveContentType applies the content-type precedence: the request
// header, then (when enabled) the key's extension, then the octet-stream
// default.
func (h *Handler) resolveContentType(header, key string) string {
	if header != "" {
		return header
	}
	if h.autoMime {
		if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
			// Strip parameters such as charset; only the essence is stored.
			if idx := strings.IndexByte(ct, ';'); idx >= 0 {
				ct = strings.TrimSpace(ct[:idx])
			}
			return ct
		}
	}
	return defaultContentType
}

// putBytes is the shared write path for PutObject and
// CompleteMultipartUpload: normalize, add to the CAS node, link into MFS,
// upsert the index, then asynchronously unpin a replaced CID.
//
// A replaced CID is only unpinned after the new row is committed, so a
// shared old CID is never racily unpinned; the overwrite-with-same-bytes
// case is skipped entirely because old and new CIDs match.
func (h *Handler) putBytes(ctx context.Context, bucket, key string, body []byte, contentTypeHeader string) (string, error) {
	path, err := mfs.Normalize(h.folderPrefix, bucket, key)
	if err != nil {
		return "", err
	}

	old, err := h.store.Get(ctx, bucket, key)
	if err != nil {
		return "", err
	}

	cid, err := h.cas.Add(ctx, body)
	if err != nil {
		return "", err
	}
	if err := h.cas.FilesCp(ctx, cid, path); err != nil {
		return "", err
	}

	contentType := h.resolveContentType(contentTypeHeader, key)
	if err := h.store.Upsert(ctx, bucket, key, cid, int64(len(body)), contentType); err != nil {
		return "", err
	}

	if old != nil && old.CID != cid {
		h.asyncUnpinIfOrphan(*old)
	}
	return cid, nil
}

// unpinIfOrphan removes the pin for meta.CID when no index row references
// it anymore.
func (h *Handler) unpinIfOrphan(ctx context.Context, meta index.Metadata) error {
	remaining, err := h.store.CIDRefCount(ctx, meta.CID)
	if err != nil {
		return err
	}
	h.logger.Debug("checked remaining references before unpin",
		"cid", meta.CID, "count", remaining)
	if remaining != 0 {
		return nil
	}
	if err := h.cas.PinRm(ctx, meta.CID); err != nil {
		return err
	}
	metrics.OrphanUnpinsTotal.Inc()
	return nil
}

// asyncUnpinIfOrphan runs unpinIfOrphan in the background, logging and
// swallowing failures.
func (h *Handler) asyncUnpinIfOrphan(meta index.Metadata) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := h.unpinIfOrphan(ctx, meta); err != nil {
			h.logger.Error("failed to unpin replaced content", "cid", meta.CID, "error", err)
		}
	}()
}

// asyncTrimEmptyFolders removes the shallowest MFS directory left empty by
// a delete. Errors are ignored; a leftover directory is harmless and the
// next delete retries the walk.
func (h *Handler) asyncTrimEmptyFolders(bucket, key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		ancestor, err := h.store.FindShallowestEmptyAncestor(ctx, bucket, key)
		if err != nil || ancestor == "" {
			return
		}
		path, err := mfs.Normalize(h.folderPrefix, bucket, ancestor)
		if err != nil {
			return
		}
		if err := h.cas.FilesRm(ctx, path); err != nil {
			h.logger.Debug("failed to trim empty directory", "path", path, "error", err)
		}
	}()
}
