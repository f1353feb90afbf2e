package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
)

// payloadTooLargeJSON is a pre-marshaled error response for 413 Request
// Entity Too Large. A constant ensures the gateway can always respond even
// if marshaling the real error body would itself fail.
const payloadTooLargeJSON = `{"error":{"type":"PayloadTooLarge","message":"request body exceeds size limit"}}`

// maxBodyBytes limits request body size with a two-phase approach: a fast
// Content-Length check, then an http.MaxBytesReader for chunked or spoofed
// requests.
func maxBodyBytes(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				writeTooLarge(w, r)
				return
			}

			body := http.MaxBytesReader(w, r.Body, maxBytes)
			buf, err := io.ReadAll(body)
			if err != nil {
				slog.WarnContext(r.Context(), "request body size limit exceeded",
					"method", r.Method, "path", r.URL.Path,
					"content_length", r.ContentLength, "limit", maxBytes, "error", err)
				writeTooLarge(w, r)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(buf))
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooLarge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	if _, err := w.Write([]byte(payloadTooLargeJSON)); err != nil {
		slog.ErrorContext(r.Context(), "failed to write payload too large response", "error", err)
	}
}
