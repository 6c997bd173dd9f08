package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return exporter
}

func spanAttribute(span tracetest.SpanStub, key string) (string, int64, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value.Emit(), attr.Value.AsInt64(), true
		}
	}
	return "", 0, false
}

func TestTracing(t *testing.T) {
	exporter := installTestTracer(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]

	if span.Name != "GET /api/v1/profiles" {
		t.Errorf("unexpected span name %q", span.Name)
	}
	if method, _, ok := spanAttribute(span, "http.method"); !ok || method != "GET" {
		t.Errorf("expected http.method=GET, got %q", method)
	}
	if _, code, ok := spanAttribute(span, "http.status_code"); !ok || code != 200 {
		t.Errorf("expected http.status_code=200, got %d", code)
	}
}

func TestTracing_UsesRoutePattern(t *testing.T) {
	exporter := installTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/profiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/6f1c1f3e-0000-4000-8000-000000000001", nil)
	Tracing(mux).ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "GET /api/v1/profiles/{id}" {
		t.Errorf("expected span named after the route, got %q", spans[0].Name)
	}
	if route, _, ok := spanAttribute(spans[0], "http.route"); !ok || route != "GET /api/v1/profiles/{id}" {
		t.Errorf("expected http.route attribute, got %q", route)
	}
}

func TestTracing_ServerErrorStatus(t *testing.T) {
	exporter := installTestTracer(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/commitments", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %+v", spans[0].Status)
	}
}

func TestTracing_ClientErrorIsNotSpanError(t *testing.T) {
	exporter := installTestTracer(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/profiles/missing", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Errorf("4xx responses should not mark the span as failed")
	}
	if _, code, _ := spanAttribute(spans[0], "http.status_code"); code != 404 {
		t.Errorf("expected http.status_code=404, got %d", code)
	}
}

func TestTracingResponseWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	tw := &tracingResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	if tw.Unwrap() != rec {
		t.Fatal("Unwrap should expose the underlying writer")
	}
	if err := http.NewResponseController(tw).Flush(); err != nil {
		t.Fatalf("flush through wrapper: %v", err)
	}
}
