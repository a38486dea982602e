package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/geometry", "/api/v1/geometry"},
		{"/api/v1/engines", "/api/v1/engines"},
		{"/api/v1/scan", "/api/v1/scan"},
		{"/api/v1/snapshots", "/api/v1/snapshots"},
		{"/api/v1/stream/pseudo", "/api/v1/stream/pseudo"},

		// Engine names collapse to one label per action.
		{"/api/v1/engines/hkl", "/api/v1/engines/{name}"},
		{"/api/v1/engines/psi", "/api/v1/engines/{name}"},
		{"/api/v1/engines/hkl/set", "/api/v1/engines/{name}/set"},
		{"/api/v1/engines/q2/mode", "/api/v1/engines/{name}/mode"},
		{"/api/v1/engines/psi/initialize", "/api/v1/engines/{name}/initialize"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v1/engines/", "other"},
		{"/api/v1/engines/hkl/drop", "other"},
		{"/api/v2/engines", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 distinct engine names produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute(fmt.Sprintf("/api/v1/engines/e%d/set", i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/engines/{name}", "GET", "418"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/engines/hkl", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/engines/{name}", "GET", "418"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestObserveSet(t *testing.T) {
	c := engineSetTotal.WithLabelValues("hkl", "bissector", "no_solution")
	before := testutil.ToFloat64(c)
	ObserveSet("hkl", "bissector", "no_solution", 0)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}
