package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testStaffToken = "app-test-staff-token-0123456789"

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	t.Setenv("CENTRAQU_STAFF_TOKENS", "ops:"+testStaffToken)
	t.Setenv("CENTRAQU_ACCESS_CODE_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("CENTRAQU_ACCESS_CODE_ARGON2_ITERATIONS", "1")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, log, memoryBackend())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

func serve(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAppHealthAndReadiness(t *testing.T) {
	a := newTestApp(t, Config{MetricsEnabled: true})
	h := a.Handler()

	rr := serve(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "ok" {
		t.Fatalf("healthz: %d %q", rr.Code, rr.Body.String())
	}
	rr = serve(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing: %q", got)
	}
}

func TestAppReadinessRequiresDB(t *testing.T) {
	a := newTestApp(t, Config{ReadinessRequireDB: true})
	rr := serve(t, a.Handler(), http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without db, got %d", rr.Code)
	}
}

func TestAppMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, Config{MetricsEnabled: true})
	h := a.Handler()

	_ = serve(t, h, http.MethodGet, "/healthz", "", nil)
	_ = serve(t, h, http.MethodPost, "/api/intake/validate", "", map[string]string{
		"linkToken":  "unknown",
		"accessCode": "ABCDEFGH",
	})

	rr := serve(t, h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"centraqu_http_request_duration_seconds",
		`centraqu_intake_validations_total{outcome="invalid_link"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestAppMetricsDisabled(t *testing.T) {
	a := newTestApp(t, Config{})
	rr := serve(t, a.Handler(), http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rr.Code)
	}
}

func TestAppIntakeFlow(t *testing.T) {
	a := newTestApp(t, Config{})
	h := a.Handler()

	rr := serve(t, h, http.MethodPost, "/api/intake/links", "", map[string]any{"maxUses": 1})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without staff token, got %d", rr.Code)
	}

	rr = serve(t, h, http.MethodPost, "/api/intake/links", testStaffToken, map[string]any{
		"expiresInHours": 24,
		"maxUses":        1,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create link: %d %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Success bool `json:"success"`
		Data    struct {
			Token      string `json:"token"`
			AccessCode string `json:"accessCode"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !created.Success || created.Data.Token == "" || created.Data.AccessCode == "" {
		t.Fatalf("unexpected create payload: %s", rr.Body.String())
	}

	rr = serve(t, h, http.MethodPost, "/api/intake/"+created.Data.Token+"/submit", "", map[string]any{
		"accessCode": created.Data.AccessCode,
		"clientData": map[string]any{"name": "Acme Ltd", "email": "ops@acme.example"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, h, http.MethodPost, "/api/intake/"+created.Data.Token+"/submit", "", map[string]any{
		"accessCode": created.Data.AccessCode,
		"clientData": map[string]any{"name": "Acme Ltd"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("second submit on single-use link: %d %s", rr.Code, rr.Body.String())
	}
}
