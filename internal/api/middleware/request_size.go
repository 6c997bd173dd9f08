package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize bounds JSON request bodies. The largest legitimate
	// body is a 1000-character message or goal.
	DefaultMaxBodySize int64 = 64 << 10
)

// RequestSize limits the size of incoming request bodies. Reads past
// maxBytes fail, and handlers answer 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
