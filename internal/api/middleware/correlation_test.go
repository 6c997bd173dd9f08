package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/skillexchange/internal/domain/ids"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID_GeneratesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var seen string
	handler := CorrelationID(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		LoggerFromContext(r.Context()).Info().Msg("inside")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil))

	require.NotEmpty(t, seen)
	assert.True(t, ids.IsULID(seen))
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"request_id":"`+seen+`"`)
}

func TestCorrelationID_ReusesIncomingHeader(t *testing.T) {
	handler := CorrelationID(zerolog.Nop())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-123", rec.Header().Get("X-Request-ID"))
}

func TestCorrelationID_ReplacesUnsafeHeader(t *testing.T) {
	for name, upstream := range map[string]string{
		"oversized":  strings.Repeat("x", 500),
		"whitespace": "abc def",
		"log forge":  "abc\",\"level\":\"error",
	} {
		t.Run(name, func(t *testing.T) {
			handler := CorrelationID(zerolog.Nop())(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", upstream)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			assert.NotEqual(t, upstream, got)
			assert.True(t, ids.IsULID(got), "generated id %q", got)
		})
	}
}

func TestRequestLogging_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := CorrelationID(logger)(RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/commitments", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":201`)
	assert.Contains(t, out, `"bytes":7`)
	assert.Contains(t, out, `"request_id"`)
}

func TestRequestLogging_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		stream    bool
		wantLevel string
	}{
		{name: "success", path: "/api/v1/profiles", status: http.StatusOK, wantLevel: "info"},
		{name: "client error", path: "/api/v1/profiles", status: http.StatusNotFound, wantLevel: "warn"},
		{name: "server error", path: "/api/v1/profiles", status: http.StatusInternalServerError, wantLevel: "error"},
		{name: "health check", path: "/healthz", status: http.StatusOK, wantLevel: "debug"},
		{name: "event stream", path: "/api/v1/notifications/stream", status: http.StatusOK, stream: true, wantLevel: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
			handler := RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.stream {
					w.Header().Set("Content-Type", "text/event-stream")
				}
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Contains(t, buf.String(), `"level":"`+tt.wantLevel+`"`)
			if tt.stream {
				assert.Contains(t, buf.String(), `"stream":true`)
			} else {
				assert.NotContains(t, buf.String(), `"stream"`)
			}
		})
	}
}

func TestLoggerFromContext_NoLogger(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	logger := LoggerFromContext(req.Context())
	require.NotNil(t, logger)
}
