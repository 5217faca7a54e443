package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/gateway"
	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/monitor"
	"github.com/agrimesh/fieldlink/internal/registry"
)

// Handlers wires the facade and health layers into the HTTP surface.
type Handlers struct {
	logger       zerolog.Logger
	gw           *gateway.Gateway
	checker      *health.Checker
	reg          *registry.Registry
	tracker      *monitor.Tracker
	pollInterval time.Duration
	collectors   *metrics.Metrics
}

// NewHandlers constructs the HTTP handler set.
func NewHandlers(logger zerolog.Logger, gw *gateway.Gateway, checker *health.Checker, reg *registry.Registry, tracker *monitor.Tracker, pollInterval time.Duration, collectors *metrics.Metrics) *Handlers {
	return &Handlers{
		logger:       logger,
		gw:           gw,
		checker:      checker,
		reg:          reg,
		tracker:      tracker,
		pollInterval: pollInterval,
		collectors:   collectors,
	}
}

// Router builds the mux router for the full HTTP surface.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealthAll).Methods(http.MethodGet)
	r.HandleFunc("/health/{service}", h.handleHealthOne).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/soil-data", h.handleSoilData).Methods(http.MethodGet)
	r.HandleFunc("/weather-data", h.handleWeatherData).Methods(http.MethodGet)
	r.HandleFunc("/fertilizer-prices", h.handleFertilizerPrices).Methods(http.MethodGet)
	r.HandleFunc("/crop-recommendations", h.handleCropRecommendations).Methods(http.MethodPost)
	r.HandleFunc("/ai-explanation", h.handleAIExplanation).Methods(http.MethodPost)
	r.HandleFunc("/sync-fertilizer-data", h.handleSyncFertilizerData).Methods(http.MethodPost)
	r.HandleFunc("/validate-recommendation", h.handleValidateRecommendation).Methods(http.MethodPost)

	r.HandleFunc("/services", h.handleServices).Methods(http.MethodGet)
	r.HandleFunc("/services/{name}/test", h.handleServiceTest).Methods(http.MethodPost)
	r.HandleFunc("/cache/clear", h.handleCacheClear).Methods(http.MethodPost)

	r.Handle("/metrics", h.collectors.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReadiness).Methods(http.MethodGet)

	return r
}

func (h *Handlers) handleHealthAll(w http.ResponseWriter, r *http.Request) {
	results := h.checker.CheckAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"services": results})
}

func (h *Handlers) handleHealthOne(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	result := h.checker.CheckService(r.Context(), name)

	status := http.StatusOK
	if result.Status == health.ResultNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]any{
		"service": name,
		"result":  result,
	})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.StatusSummary())
}

func (h *Handlers) handleSoilData(w http.ResponseWriter, r *http.Request) {
	fieldID := r.URL.Query().Get("field_id")
	if fieldID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "field_id is required"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.SoilData(r.Context(), fieldID))
}

func (h *Handlers) handleWeatherData(w http.ResponseWriter, r *http.Request) {
	location := r.URL.Query().Get("location")
	if location == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "location is required"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.WeatherData(r.Context(), location))
}

func (h *Handlers) handleFertilizerPrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.FertilizerPrices(r.Context()))
}

func (h *Handlers) handleCropRecommendations(w http.ResponseWriter, r *http.Request) {
	criteria, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.gw.CropRecommendations(r.Context(), criteria))
}

func (h *Handlers) handleAIExplanation(w http.ResponseWriter, r *http.Request) {
	request, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.gw.AIExplanation(r.Context(), request))
}

func (h *Handlers) handleSyncFertilizerData(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}
	fieldID, _ := body["field_id"].(string)
	userID, _ := body["user_id"].(string)
	if fieldID == "" || userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "field_id and user_id are required"})
		return
	}
	writeJSON(w, http.StatusOK, h.gw.SyncFertilizerData(r.Context(), fieldID, userID))
}

func (h *Handlers) handleValidateRecommendation(w http.ResponseWriter, r *http.Request) {
	recommendation, ok := decodeBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.gw.ValidateRecommendation(r.Context(), recommendation))
}

func (h *Handlers) handleServices(w http.ResponseWriter, r *http.Request) {
	services := make([]map[string]any, 0, h.reg.Len())
	for _, name := range h.reg.Names() {
		desc, _ := h.reg.Descriptor(name)
		services = append(services, map[string]any{
			"name":            desc.Name,
			"base_url":        desc.BaseURL,
			"endpoints":       desc.Endpoints,
			"timeout_seconds": desc.Timeout.Seconds(),
			"retry_attempts":  desc.RetryAttempts,
			"critical":        desc.Critical,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (h *Handlers) handleServiceTest(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	result := h.gw.TestService(r.Context(), name)

	status := http.StatusOK
	if result["status"] == health.ResultNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

func (h *Handlers) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	evicted := h.gw.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "cleared",
		"entries_evicted": evicted,
	})
}

func (h *Handlers) handleLiveness(w http.ResponseWriter, r *http.Request) {
	status := http.StatusServiceUnavailable
	if h.tracker.Healthy(time.Now().UTC(), h.pollInterval) {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"cycle": h.tracker.Snapshot()})
}

func (h *Handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := http.StatusServiceUnavailable
	if h.tracker.Ready() {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"cycle": h.tracker.Snapshot()})
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return nil, false
	}
	return body, true
}

// writeJSON encodes the payload with a timestamp field added when absent.
func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
