package meshmetrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzReportsHealthy(t *testing.T) {
	h := Handler(New(), "test-version")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Fatalf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "test-version" {
		t.Fatalf("version = %q, want test-version", resp.Version)
	}
}

func TestMetricsServesPrometheusExposition(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	h := Handler(c, "test-version")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "meshd_connections_active") {
		t.Fatal("expected exposition to contain meshd_connections_active")
	}
}
