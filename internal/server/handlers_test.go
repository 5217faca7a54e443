package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/gateway"
	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/monitor"
	"github.com/agrimesh/fieldlink/internal/registry"
	"github.com/agrimesh/fieldlink/internal/transport"
)

type fakeCaller struct {
	payload transport.Payload
	err     error
}

func (c *fakeCaller) Get(_ context.Context, _ string, _ url.Values) (transport.Payload, error) {
	return c.payload, c.err
}

func (c *fakeCaller) Post(_ context.Context, _ string, _ any) (transport.Payload, error) {
	return c.payload, c.err
}

type fakeProber struct {
	healthy bool
	err     error
}

func (p *fakeProber) Probe(_ context.Context) (bool, error) {
	return p.healthy, p.err
}

type fixture struct {
	handlers *Handlers
	tracker  *monitor.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.FromDescriptors([]registry.Descriptor{
		{Name: gateway.ServiceSoil, BaseURL: "http://soil.internal", Timeout: time.Second, Critical: true},
		{Name: gateway.ServiceWeather, BaseURL: "http://weather.internal", Timeout: time.Second, Critical: true},
	})

	probers := map[string]health.Prober{
		gateway.ServiceSoil:    &fakeProber{healthy: true},
		gateway.ServiceWeather: &fakeProber{healthy: false},
	}
	checker := health.New(zerolog.Nop(), reg, probers)

	callers := map[string]gateway.Caller{
		gateway.ServiceSoil:    &fakeCaller{payload: transport.Payload{"ph": 6.5}},
		gateway.ServiceWeather: &fakeCaller{err: errors.New("connection refused")},
	}
	gw := gateway.New(zerolog.Nop(), reg, callers, checker)

	tracker := monitor.NewTracker()
	return &fixture{
		handlers: NewHandlers(zerolog.Nop(), gw, checker, reg, tracker, time.Minute, metrics.New()),
		tracker:  tracker,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	recorder := httptest.NewRecorder()
	f.handlers.Router().ServeHTTP(recorder, request)

	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, recorder.Body.String())
	}
	return recorder, payload
}

func TestHandleHealthAll(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	services, ok := payload["services"].(map[string]any)
	if !ok {
		t.Fatalf("expected services map, got %v", payload)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Fatalf("expected timestamp in payload")
	}
}

func TestHandleHealthOneUnknownService(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/health/unknown", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	result, ok := payload["result"].(map[string]any)
	if !ok || result["status"] != health.ResultNotFound {
		t.Fatalf("expected not_found result, got %v", payload)
	}
}

func TestHandleStatusDegraded(t *testing.T) {
	f := newFixture(t)

	// Probe everything so the unhealthy critical service is recorded.
	f.do(t, http.MethodGet, "/health", "")

	recorder, payload := f.do(t, http.MethodGet, "/status", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload["overall_status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", payload["overall_status"])
	}
	down, ok := payload["critical_services_down"].([]any)
	if !ok || len(down) != 1 || down[0] != gateway.ServiceWeather {
		t.Fatalf("unexpected critical_services_down: %v", payload["critical_services_down"])
	}
}

func TestHandleSoilDataRequiresFieldID(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/soil-data", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload["error"] != "field_id is required" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
}

func TestHandleSoilData(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/soil-data?field_id=f-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload["ph"] != 6.5 {
		t.Fatalf("expected ph passthrough, got %v", payload)
	}
}

func TestHandleWeatherDataDownstreamFailure(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/weather-data?location=field-7", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("downstream failure must still yield 200, got %d", recorder.Code)
	}
	if payload["status"] != "failed" {
		t.Fatalf("expected failed status, got %v", payload)
	}
	if payload["error"] == nil {
		t.Fatalf("expected error field in payload")
	}
}

func TestHandleSyncFertilizerData(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodPost, "/sync-fertilizer-data", `{"field_id":"f-1","user_id":"u-1"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload["status"] != "partial" {
		t.Fatalf("expected partial sync (weather failing), got %v", payload["status"])
	}
	if payload["field_id"] != "f-1" || payload["user_id"] != "u-1" {
		t.Fatalf("identifiers not echoed: %v", payload)
	}
}

func TestHandleSyncFertilizerDataMissingFields(t *testing.T) {
	f := newFixture(t)

	recorder, _ := f.do(t, http.MethodPost, "/sync-fertilizer-data", `{"field_id":"f-1"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHandleInvalidJSONBody(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodPost, "/validate-recommendation", "{not json")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload["error"] != "invalid JSON body" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
}

func TestHandleValidateRecommendation(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodPost, "/validate-recommendation", `{"field_id":"f-1","location":"field-7"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload["overall_status"] != "invalid" {
		t.Fatalf("expected invalid (weather failing), got %v", payload)
	}
	sources, ok := payload["sources"].(map[string]any)
	if !ok || sources["soil_data"] != "valid" || sources["weather_data"] != "invalid" {
		t.Fatalf("unexpected sources: %v", payload["sources"])
	}
}

func TestHandleServices(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodGet, "/services", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	services, ok := payload["services"].([]any)
	if !ok || len(services) != 2 {
		t.Fatalf("expected 2 services, got %v", payload["services"])
	}
	first, ok := services[0].(map[string]any)
	if !ok || first["name"] != gateway.ServiceSoil {
		t.Fatalf("expected sorted services, got %v", services)
	}
}

func TestHandleServiceTestUnknown(t *testing.T) {
	f := newFixture(t)

	recorder, payload := f.do(t, http.MethodPost, "/services/unknown/test", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if payload["status"] != health.ResultNotFound {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHandleCacheClear(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/sync-fertilizer-data", `{"field_id":"f-1","user_id":"u-1"}`)

	recorder, payload := f.do(t, http.MethodPost, "/cache/clear", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload["status"] != "cleared" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["entries_evicted"] != 1.0 {
		t.Fatalf("expected 1 evicted entry, got %v", payload["entries_evicted"])
	}
}

func TestHandleLivenessAndReadiness(t *testing.T) {
	f := newFixture(t)

	recorder, _ := f.do(t, http.MethodGet, "/readyz", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first cycle, got %d", recorder.Code)
	}
	recorder, _ = f.do(t, http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first cycle, got %d", recorder.Code)
	}

	f.tracker.RecordCycle(10*time.Millisecond, 2)

	recorder, _ = f.do(t, http.MethodGet, "/readyz", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 after a cycle, got %d", recorder.Code)
	}
	recorder, payload := f.do(t, http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 after a cycle, got %d", recorder.Code)
	}
	cycle, ok := payload["cycle"].(map[string]any)
	if !ok || cycle["services_checked"] != 2.0 {
		t.Fatalf("unexpected cycle payload: %v", payload["cycle"])
	}
}

func TestHandleMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	request := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	f.handlers.Router().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
