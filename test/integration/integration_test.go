//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agrimesh/fieldlink/internal/config"
	"github.com/agrimesh/fieldlink/internal/gateway"
	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/logging"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/monitor"
	"github.com/agrimesh/fieldlink/internal/registry"
	"github.com/agrimesh/fieldlink/internal/server"
	"github.com/agrimesh/fieldlink/internal/transport"
)

// TestIntegrationFullStack wires the real components end to end against fake
// downstream services: services file -> registry -> transport -> checker ->
// monitor -> gateway -> HTTP surface.
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestIntegrationFullStack(t *testing.T) {
	soil := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		case "/api/v1/soil/characteristics":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"field_id": r.URL.Query().Get("field_id"),
				"ph":       6.5,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer soil.Close()

	weather := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer weather.Close()

	servicesPath := filepath.Join(t.TempDir(), "services.yaml")
	servicesYAML := `
services:
  - name: soil-data
    base_url: ` + soil.URL + `
    endpoints:
      characteristics: /api/v1/soil/characteristics
    timeout: 2
    retry_attempts: 0
    critical: true
  - name: weather-data
    base_url: ` + weather.URL + `
    timeout: 2
    retry_attempts: 0
    critical: true
`
	if err := os.WriteFile(servicesPath, []byte(servicesYAML), 0o644); err != nil {
		t.Fatalf("write services file: %v", err)
	}

	logger := logging.New("warn")
	entries, err := config.LoadServicesFile(servicesPath)
	if err != nil {
		t.Fatalf("load services file: %v", err)
	}

	reg := registry.New(entries)
	collectors := metrics.New()

	probers := make(map[string]health.Prober, reg.Len())
	callers := make(map[string]gateway.Caller, reg.Len())
	for _, name := range reg.Names() {
		desc, _ := reg.Descriptor(name)
		client := transport.NewClient(logger, desc)
		probers[name] = client
		callers[name] = client
	}

	checker := health.New(logger, reg, probers, health.WithMetrics(collectors))
	gw := gateway.New(logger, reg, callers, checker, gateway.WithMetrics(collectors))
	mon := monitor.New(logger, time.Minute, checker, reg, monitor.WithMetrics(collectors))

	if err := mon.RunOnce(context.Background()); err != nil {
		t.Fatalf("poll cycle: %v", err)
	}

	handlers := server.NewHandlers(logger, gw, checker, reg, mon.Tracker(), time.Minute, collectors)
	api := httptest.NewServer(handlers.Router())
	defer api.Close()

	t.Run("StatusDegraded", func(t *testing.T) {
		payload := getJSON(t, api.URL+"/status")
		if payload["overall_status"] != "degraded" {
			t.Fatalf("expected degraded (weather down), got %v", payload["overall_status"])
		}
		if payload["healthy_services"] != 1.0 {
			t.Fatalf("expected 1 healthy service, got %v", payload["healthy_services"])
		}
	})

	t.Run("SoilDataPassthrough", func(t *testing.T) {
		payload := getJSON(t, api.URL+"/soil-data?field_id=f-42")
		if payload["ph"] != 6.5 || payload["field_id"] != "f-42" {
			t.Fatalf("unexpected soil payload: %v", payload)
		}
	})

	t.Run("WeatherFailureAsData", func(t *testing.T) {
		payload := getJSON(t, api.URL+"/weather-data?location=field-42")
		if payload["status"] != "failed" {
			t.Fatalf("expected failed status, got %v", payload)
		}
	})

	t.Run("SyncPartial", func(t *testing.T) {
		resp, err := http.Post(api.URL+"/sync-fertilizer-data", "application/json",
			strings.NewReader(`{"field_id":"f-42","user_id":"u-1"}`))
		if err != nil {
			t.Fatalf("sync request: %v", err)
		}
		defer resp.Body.Close()

		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode sync response: %v", err)
		}
		if payload["status"] != "partial" {
			t.Fatalf("expected partial sync, got %v", payload["status"])
		}
	})

	t.Run("Readiness", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/readyz")
		if err != nil {
			t.Fatalf("readyz request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected ready after a cycle, got %d", resp.StatusCode)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/metrics")
		if err != nil {
			t.Fatalf("metrics request: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected metrics status: %d", resp.StatusCode)
		}
	})
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return payload
}
