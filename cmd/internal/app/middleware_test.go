package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: 200, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: 302, wantLevel: slog.LevelInfo, wantResult: "redirect", wantClass: "3xx"},
		{status: 404, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 503, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}

func TestWithRequestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}), log, m)

	req := httptest.NewRequest(http.MethodGet, "/api/intake/links/missing", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output: %v (%q)", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["msg"] != "http.request" || rec["result"] != "client_error" {
		t.Fatalf("unexpected log record: %v", rec)
	}
	if rec["status"] != float64(http.StatusNotFound) {
		t.Fatalf("status attr: %v", rec["status"])
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestNewHTTPMetricsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := NewHTTPMetrics(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewHTTPMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	var nilMetrics *HTTPMetrics
	nilMetrics.observe(http.MethodGet, 200, 0)
}

func TestWithRecovery(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithRecovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"http.panic"`)) {
		t.Fatalf("panic not logged: %q", buf.String())
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing nosniff: %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("missing frame options: %q", got)
	}
	if got := rr.Header().Get("Referrer-Policy"); got != "no-referrer" {
		t.Fatalf("missing referrer policy: %q", got)
	}
}

func TestLoggingResponseWriterCountsBytes(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rr, status: http.StatusOK}
	if _, err := io.WriteString(lrw, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if lrw.bytes != 5 {
		t.Fatalf("bytes=%d want 5", lrw.bytes)
	}
	if lrw.Unwrap() != rr {
		t.Fatalf("Unwrap should return the wrapped writer")
	}
}
