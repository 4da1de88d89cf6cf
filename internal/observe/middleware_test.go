package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup wires a manual metric reader and an in-memory span exporter.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	return m, reader, useTestTracer(t)
}

// spanAttr returns the value of key on the first exported span.
func spanAttr(t *testing.T, exp *tracetest.InMemoryExporter, key attribute.Key) (attribute.Value, bool) {
	t.Helper()
	spans := exp.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	for _, a := range spans[0].Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_Spans(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantName   string
		wantStatus codes.Code
	}{
		{name: "ok", status: http.StatusOK, wantName: "HTTP GET /v1/profile", wantStatus: codes.Unset},
		{name: "client error", status: http.StatusNotFound, wantName: "HTTP GET /v1/profile", wantStatus: codes.Unset},
		{name: "server error", status: http.StatusBadGateway, wantName: "HTTP GET /v1/profile", wantStatus: codes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, exp := testSetup(t)
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/profile", nil))

			if rec.Code != tt.status {
				t.Errorf("response status = %d, want %d", rec.Code, tt.status)
			}
			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tt.wantName {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantName)
			}
			if spans[0].Status.Code != tt.wantStatus {
				t.Errorf("span status = %v, want %v", spans[0].Status.Code, tt.wantStatus)
			}
			if v, ok := spanAttr(t, exp, "http.response.status_code"); !ok || v.AsInt64() != int64(tt.status) {
				t.Errorf("http.response.status_code = %v (present %v), want %d", v.AsInt64(), ok, tt.status)
			}
		})
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		want        string // empty accepts any generated id
	}{
		{name: "generated"},
		{name: "propagated", traceparent: "00-" + traceID + "-00f067aa0ba902b7-01", want: traceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := testSetup(t)
			var seen string
			h := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest("GET", "/v1/tasks", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id %q is not a trace id", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation id = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get(CorrelationHeader); got != seen {
				t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
			}
		})
	}
}

func TestMiddleware_RecordsDurationByRoute(t *testing.T) {
	m, reader, exp := testSetup(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tasks/{id}", func(http.ResponseWriter, *http.Request) {})
	h := Middleware(m)(mux)
	for _, id := range []string{"discovery", "roadmap", "resume"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/tasks/"+id, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "autojob.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want one series for the pattern", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 3 {
		t.Errorf("sample count = %d, want 3", dp.Count)
	}
	if v, _ := dp.Attributes.Value("path"); v.AsString() != "GET /v1/tasks/{id}" {
		t.Errorf("path attribute = %q", v.AsString())
	}
	if v, _ := dp.Attributes.Value("method"); v.AsString() != "GET" {
		t.Errorf("method attribute = %q", v.AsString())
	}
	if v, ok := spanAttr(t, exp, "http.route"); !ok || v.AsString() != "GET /v1/tasks/{id}" {
		t.Errorf("http.route = %q (present %v)", v.AsString(), ok)
	}
}

func TestMiddleware_ForwardsFlush(t *testing.T) {
	m, _, _ := testSetup(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Error("wrapped writer does not implement http.Flusher")
			return
		}
		_, _ = w.Write([]byte("data: x\n\n"))
		f.Flush()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/tasks/stream", nil))
	if !rec.Flushed {
		t.Error("Flush was not forwarded to the underlying writer")
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	useTestTracer(t)
	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
}
