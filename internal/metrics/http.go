package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics. Paths are normalised by normalizePath before labelling.
var (
	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration excludes event streams, which are tracked by
	// HTTPStreamDuration instead.
	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds, excluding event streams",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	HTTPResponseSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// RateLimited counts requests rejected by the rate limiter
	RateLimited = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Total number of requests rejected with 429",
		},
		[]string{"tier"},
	)

	// HTTPStreamsOpen counts open server-sent event streams
	HTTPStreamsOpen = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_streams_open",
			Help:      "Current number of open server-sent event streams",
		},
		[]string{"path"},
	)

	// HTTPStreamDuration records how long event streams stay connected
	HTTPStreamDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_stream_duration_seconds",
			Help:      "Server-sent event stream lifetime in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 14400},
		},
		[]string{"path"},
	)
)

// responseWriter records the status and size of a response and notices when
// the handler switches it to an event stream.
type responseWriter struct {
	http.ResponseWriter
	path         string
	statusCode   int
	bytesWritten int
	stream       bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
		if strings.HasPrefix(rw.Header().Get("Content-Type"), "text/event-stream") {
			rw.stream = true
			HTTPStreamsOpen.WithLabelValues(rw.path).Inc()
		}
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// HTTPMiddleware records request counts, latency and response size.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		path := normalizePath(r.URL.Path)
		wrapped := &responseWriter{ResponseWriter: w, path: path}

		next.ServeHTTP(wrapped, r)

		elapsed := time.Since(start).Seconds()
		status := wrapped.statusCode
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()

		if wrapped.stream {
			HTTPStreamsOpen.WithLabelValues(path).Dec()
			HTTPStreamDuration.WithLabelValues(path).Observe(elapsed)
			return
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed)
		HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(wrapped.bytesWritten))
	})
}

// normalizePath collapses id path segments so label cardinality stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return path
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := uuid.Parse(segment); err == nil {
			segments[i] = "{id}"
		} else if i > 0 && segments[i-1] == "usernames" {
			segments[i] = "{username}"
		}
	}
	return strings.Join(segments, "/")
}
