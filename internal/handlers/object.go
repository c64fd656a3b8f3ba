package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ipfsgate/ipfsgate/internal/clientip"
	"github.com/ipfsgate/ipfsgate/internal/config"
	"github.com/ipfsgate/ipfsgate/internal/index"
	"github.com/ipfsgate/ipfsgate/internal/mfs"
	"github.com/ipfsgate/ipfsgate/internal/xmlutil"
)

// PutObject stores the request body on the CAS node and records its
// metadata. With uploadId and partNumber query parameters it records a
// multipart part instead.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		h.uploadPart(w, r, uploadID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read request body", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cid, err := h.putBytes(r.Context(), bucket, key, body, r.Header.Get("Content-Type"))
	if err != nil {
		var pathErr *mfs.PathError
		if errors.As(err, &pathErr) {
			h.logger.Error("invalid key value", "bucket", bucket, "key", key, "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to store object", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Length", "0")
	w.Header().Set("ETag", etagValue(cid))
	w.Header().Set("x-ipfs-roots", cid)
	w.Header().Set("x-ipfs-path", "/ipfs/"+cid)
	w.WriteHeader(http.StatusOK)
}

// GetObject serves object bytes either by proxying the CAS stream or by
// redirecting to the public gateway, per the configured mode.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	meta, err := h.store.Get(r.Context(), bucket, key)
	if err != nil {
		h.logger.Error("failed to retrieve object metadata", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if meta == nil {
		h.logger.Warn("object not found", "bucket", bucket, "key", key)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if h.shouldProxy(r) {
		h.proxy(w, r, meta)
	} else {
		h.redirect(w, meta)
	}
}

// shouldProxy applies the operation mode to the request's client address.
func (h *Handler) shouldProxy(r *http.Request) bool {
	switch h.mode {
	case config.ModeProxy:
		return true
	case config.ModeRedirect:
		return false
	}
	addr, ok := clientip.FromContext(r.Context())
	return ok && clientip.IsPrivate(addr, h.privatePrefixes)
}

// proxy streams the object bytes from the CAS node through the gateway.
func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, meta *index.Metadata) {
	stream, err := h.cas.Cat(r.Context(), meta.CID)
	if err != nil {
		h.logger.Error("failed to read content from storage", "cid", meta.CID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	w.Header().Set("x-ipfs-path", "/ipfs/"+meta.CID)
	w.Header().Set("x-ipfs-roots", meta.CID)
	w.Header().Set("Cache-Control", "public, max-age=29030400, immutable")
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.UpdatedAt))
	w.Header().Set("priority", "i")
	w.Header().Set("x-robots-tag", "noindex, nofollow")
	w.Header().Set("ETag", etagValue(meta.CID))
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream); err != nil {
		h.logger.Debug("response stream interrupted", "cid", meta.CID, "error", err)
	}
}

// redirect answers with a temporary redirect to the public gateway.
func (h *Handler) redirect(w http.ResponseWriter, meta *index.Metadata) {
	location := h.gateway + "/ipfs/" + meta.CID
	h.logger.Debug("redirecting to gateway",
		"bucket", meta.Bucket, "key", meta.Key, "gateway", location)

	w.Header().Set("Location", location)
	w.Header().Set("x-ipfs-path", "/ipfs/"+meta.CID)
	w.Header().Set("x-ipfs-roots", meta.CID)
	w.Header().Set("Content-Type", meta.ContentType)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

// HeadObject reports object metadata without a body.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	meta, err := h.store.Get(r.Context(), bucket, key)
	if err != nil {
		h.logger.Error("failed to verify object existence", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if meta == nil {
		h.logger.Warn("object not found", "bucket", bucket, "key", key)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=29030400, immutable")
	w.Header().Set("ETag", etagValue(meta.CID))
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(meta.UpdatedAt))
	w.Header().Set("x-ipfs-path", "/ipfs/"+meta.CID)
	w.Header().Set("x-ipfs-roots", meta.CID)
	w.WriteHeader(http.StatusOK)
}

// DeleteObject removes the object, or aborts a multipart upload when the
// uploadId query parameter is present.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	if uploadID := r.URL.Query().Get("uploadId"); uploadID != "" {
		h.abortUpload(w, bucket, key, uploadID)
		return
	}

	meta, err := h.deleteOne(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, errObjectNotFound) {
			h.logger.Warn("object not found", "bucket", bucket, "key", key)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete object", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("x-ipfs-path", "/ipfs/"+meta.CID)
	w.Header().Set("x-ipfs-roots", meta.CID)
	w.WriteHeader(http.StatusNoContent)
}

// deleteOne is the single-object delete path shared with bulk deletes:
// unlink from MFS, drop the row, unpin when orphaned, and trim empty
// directories in the background.
func (h *Handler) deleteOne(ctx context.Context, bucket, key string) (*index.Metadata, error) {
	meta, err := h.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errObjectNotFound
	}

	path, err := mfs.Normalize(h.folderPrefix, meta.Bucket, meta.Key)
	if err != nil {
		return nil, err
	}
	if err := h.cas.FilesRm(ctx, path); err != nil {
		return nil, err
	}
	if err := h.store.Delete(ctx, meta.Bucket, meta.Key); err != nil {
		return nil, err
	}
	if err := h.unpinIfOrphan(ctx, *meta); err != nil {
		return nil, err
	}

	if h.trimEmptyFolders {
		h.asyncTrimEmptyFolders(meta.Bucket, meta.Key)
	}
	return meta, nil
}
