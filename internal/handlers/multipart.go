package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ipfsgate/ipfsgate/internal/metrics"
	"github.com/ipfsgate/ipfsgate/internal/mfs"
	"github.com/ipfsgate/ipfsgate/internal/multipart"
	"github.com/ipfsgate/ipfsgate/internal/uid"
	"github.com/ipfsgate/ipfsgate/internal/xmlutil"
)

// PostObject handles CreateMultipartUpload (?uploads) and
// CompleteMultipartUpload (?uploadId).
func (h *Handler) PostObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	query := r.URL.Query()

	if query.Has("uploads") {
		h.createUpload(w, bucket, key)
		return
	}
	if uploadID := query.Get("uploadId"); uploadID != "" {
		h.completeUpload(w, r, bucket, key, uploadID)
		return
	}

	w.WriteHeader(http.StatusBadRequest)
}

// createUpload registers a new multipart upload, refusing at capacity so
// memory stays bounded.
func (h *Handler) createUpload(w http.ResponseWriter, bucket, key string) {
	uploadID := uid.UploadID()
	if err := h.uploads.Create(uploadID); err != nil {
		if errors.Is(err, multipart.ErrCapacity) {
			h.logger.Warn("refusing multipart upload at capacity", "bucket", bucket, "key", key)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	metrics.MultipartUploadsInFlight.Set(float64(h.uploads.Len()))
	h.logger.Debug("started multipart upload", "bucket", bucket, "key", key, "upload_id", uploadID)

	xmlutil.RenderInitiateMultipartUpload(w, &xmlutil.InitiateMultipartUploadResult{
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
	})
}

// uploadPart records one part's bytes. Invoked from PutObject when the
// uploadId and partNumber query parameters are present.
func (h *Handler) uploadPart(w http.ResponseWriter, r *http.Request, uploadID string) {
	partNumber, err := strconv.ParseInt(r.URL.Query().Get("partNumber"), 10, 8)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	upload := h.uploads.Get(uploadID)
	if upload == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	upload.PutPart(int8(partNumber), body)
	w.WriteHeader(http.StatusOK)
}

// completeUpload consumes the upload, concatenates its parts in part-number
// order, and stores the result as a normal object with no explicit content
// type.
func (h *Handler) completeUpload(w http.ResponseWriter, r *http.Request, bucket, key, uploadID string) {
	upload, ok := h.uploads.Remove(uploadID)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	metrics.MultipartUploadsInFlight.Set(float64(h.uploads.Len()))
	h.logger.Debug("finishing multipart upload", "bucket", bucket, "key", key, "upload_id", uploadID)

	cid, err := h.putBytes(r.Context(), bucket, key, upload.Assemble(), "")
	if err != nil {
		var pathErr *mfs.PathError
		if errors.As(err, &pathErr) {
			h.logger.Error("invalid key value", "bucket", bucket, "key", key, "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to store assembled object", "bucket", bucket, "key", key, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	xmlutil.RenderCompleteMultipartUpload(w, &xmlutil.CompleteMultipartUploadResult{
		Bucket: bucket,
		Key:    key,
		ETag:   etagValue(cid),
	})
}

// abortUpload discards the upload if present. Always 204; aborting an
// unknown upload is not an error.
func (h *Handler) abortUpload(w http.ResponseWriter, bucket, key, uploadID string) {
	_, present := h.uploads.Remove(uploadID)
	metrics.MultipartUploadsInFlight.Set(float64(h.uploads.Len()))
	h.logger.Debug("aborting multipart upload",
		"bucket", bucket, "key", key, "upload_id", uploadID, "present", present)
	w.WriteHeader(http.StatusNoContent)
}
