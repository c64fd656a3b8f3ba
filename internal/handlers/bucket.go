package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ipfsgate/ipfsgate/internal/xmlutil"
)

// GetBucket answers GetBucketLocation with the fixed "ipfs" region, or a
// stub bucket description otherwise. Buckets have no stored state; any
// name resolves.
func (h *Handler) GetBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if r.URL.Query().Has("location") {
		xmlutil.RenderLocationConstraint(w, "ipfs")
		return
	}

	w.Header().Set("x-amz-bucket-region", "ipfs")
	xmlutil.RenderGetBucket(w, &xmlutil.GetBucketResult{
		Bucket:                   bucket,
		PublicAccessBlockEnabled: true,
		CreationDate:             xmlutil.FormatTimeS3(time.Now()),
	})
}

// PostBucket handles bucket modification. Only bulk DeleteObjects (the
// ?delete form) is implemented; buckets themselves are not real.
func (h *Handler) PostBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if !r.URL.Query().Has("delete") {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	req, err := xmlutil.ParseDeleteRequest(r.Body)
	if err != nil {
		h.logger.Error("failed to parse bulk delete request", "bucket", bucket, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result := xmlutil.DeleteResult{}
	for _, obj := range req.Objects {
		if _, err := h.deleteOne(r.Context(), bucket, obj.Key); err != nil {
			if !errors.Is(err, errObjectNotFound) {
				h.logger.Error("failed to delete object", "bucket", bucket, "key", obj.Key, "error", err)
			}
			result.Errors = append(result.Errors, xmlutil.DeleteError{Key: obj.Key})
			continue
		}
		result.Deleted = append(result.Deleted, xmlutil.DeletedItem{Key: obj.Key})
	}

	xmlutil.RenderDeleteResult(w, &result)
}
