package auth

import (
	"log/slog"
	"net/http"
)

// Middleware rejects requests that do not carry a valid signature for the
// verifier's credential. Rejections are 401 with an empty body. Accepted
// requests with a streaming payload declaration get their body replaced by
// the chunk unwrapper so handlers see plain object bytes.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Verify(r) {
				logger.Warn("rejected unsigned or mis-signed request",
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			if r.Header.Get("X-Amz-Content-Sha256") == streamingPayload && r.Body != nil {
				r.Body = NewChunkedReader(r.Body)
				r.ContentLength = -1
			}

			next.ServeHTTP(w, r)
		})
	}
}
