package middleware

import "net/http"

const (
	// DefaultMaxBodySize bounds ordinary JSON bodies.
	DefaultMaxBodySize int64 = 1 << 20 // 1MB

	// UploadMaxBodySize bounds CSV uploads.
	UploadMaxBodySize int64 = 5 << 20 // 5MB
)

// RequestSize limits incoming request bodies via http.MaxBytesReader;
// oversized bodies fail the first read with 413 semantics.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
