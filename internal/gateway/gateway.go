// Package gateway is the facade over the transport and health layers. Every
// method returns a result object; failures are surfaced as data with a
// "failed" status and an "error" key, never as errors, so a degraded
// downstream service cannot crash a caller.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/registry"
	"github.com/agrimesh/fieldlink/internal/transport"
)

// Configured downstream service names.
const (
	ServiceSoil    = "soil-data"
	ServiceWeather = "weather-data"
	ServicePrices  = "fertilizer-price"
	ServiceCrops   = "crop-recommendation"
	ServiceAI      = "ai-explanation"
)

// Logical endpoint names resolved through each service descriptor.
const (
	endpointCharacteristics = "characteristics"
	endpointCurrent         = "current"
	endpointPrices          = "prices"
	endpointRecommend       = "recommend"
	endpointExplain         = "explain"
)

// Caller issues JSON requests against one downstream service.
type Caller interface {
	Get(ctx context.Context, endpoint string, params url.Values) (transport.Payload, error)
	Post(ctx context.Context, endpoint string, body any) (transport.Payload, error)
}

// Gateway aggregates cross-service calls behind a uniform result contract.
type Gateway struct {
	logger  zerolog.Logger
	reg     *registry.Registry
	callers map[string]Caller
	checker *health.Checker
	cache   *syncCache
	metrics *metrics.Metrics
}

// Option customizes gateway behavior.
type Option func(*Gateway)

// WithCacheTTL overrides the sync cache freshness window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = newSyncCache(ttl)
	}
}

// WithMetrics attaches Prometheus collectors to cache activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New constructs a Gateway over the given registry, per-service callers,
// and health checker.
func New(logger zerolog.Logger, reg *registry.Registry, callers map[string]Caller, checker *health.Checker, opts ...Option) *Gateway {
	g := &Gateway{
		logger:  logger,
		reg:     reg,
		callers: callers,
		checker: checker,
		cache:   newSyncCache(defaultSyncTTL),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SoilData fetches soil characteristics for a field.
func (g *Gateway) SoilData(ctx context.Context, fieldID string) map[string]any {
	params := url.Values{}
	if fieldID != "" {
		params.Set("field_id", fieldID)
	}
	return g.get(ctx, ServiceSoil, endpointCharacteristics, params)
}

// WeatherData fetches current weather for a location.
func (g *Gateway) WeatherData(ctx context.Context, location string) map[string]any {
	params := url.Values{}
	if location != "" {
		params.Set("location", location)
	}
	return g.get(ctx, ServiceWeather, endpointCurrent, params)
}

// FertilizerPrices fetches current fertilizer price data.
func (g *Gateway) FertilizerPrices(ctx context.Context) map[string]any {
	return g.get(ctx, ServicePrices, endpointPrices, nil)
}

// CropRecommendations requests crop variety recommendations for the given criteria.
func (g *Gateway) CropRecommendations(ctx context.Context, criteria map[string]any) map[string]any {
	return g.post(ctx, ServiceCrops, endpointRecommend, criteria)
}

// AIExplanation requests a natural-language explanation for a recommendation.
func (g *Gateway) AIExplanation(ctx context.Context, request map[string]any) map[string]any {
	return g.post(ctx, ServiceAI, endpointExplain, request)
}

// SyncFertilizerData merges soil and weather data for a field/user pair,
// memoized in the sync cache. The field ID doubles as the weather location,
// which is how the weather service keys lookups for registered fields. A
// fresh cached entry is returned without any network call.
func (g *Gateway) SyncFertilizerData(ctx context.Context, fieldID, userID string) map[string]any {
	key := syncKey(fieldID, userID)
	if entry, ok := g.cache.get(key); ok {
		g.metrics.IncCacheHits()
		return entry
	}
	g.metrics.IncCacheMisses()

	soil := g.SoilData(ctx, fieldID)
	weather := g.WeatherData(ctx, fieldID)

	result := map[string]any{
		"field_id":     fieldID,
		"user_id":      userID,
		"soil_data":    soil,
		"weather_data": weather,
		"fetched_at":   g.cache.clock().Format(time.RFC3339Nano),
		"status":       syncStatus(soil, weather),
	}

	g.cache.put(key, result)
	return result
}

// ValidateRecommendation cross-checks a fertilizer recommendation against
// the sources it references: soil data when field_id is present, weather
// data when location is present. A source is invalid when its response
// carries an error key; the overall status is invalid when any consulted
// source is.
func (g *Gateway) ValidateRecommendation(ctx context.Context, recommendation map[string]any) map[string]any {
	sources := map[string]string{}

	if fieldID, ok := stringField(recommendation, "field_id"); ok {
		sources["soil_data"] = validity(g.SoilData(ctx, fieldID))
	}
	if location, ok := stringField(recommendation, "location"); ok {
		sources["weather_data"] = validity(g.WeatherData(ctx, location))
	}

	overall := "valid"
	for _, result := range sources {
		if result == "invalid" {
			overall = "invalid"
			break
		}
	}

	return map[string]any{
		"sources":        sources,
		"overall_status": overall,
	}
}

// StatusSummary is a pure read over the in-memory status table. The overall
// status is degraded exactly when some critical service is not healthy.
func (g *Gateway) StatusSummary() map[string]any {
	statuses := g.reg.Statuses()

	healthy := 0
	criticalDown := make([]string, 0)
	services := make(map[string]registry.ServiceStatus, len(statuses))
	for _, status := range statuses {
		services[status.Name] = status
		if status.Status == registry.StatusHealthy {
			healthy++
			continue
		}
		if status.Critical {
			criticalDown = append(criticalDown, status.Name)
		}
	}

	overall := "healthy"
	if len(criticalDown) > 0 {
		overall = "degraded"
	}

	return map[string]any{
		"total_services":         len(statuses),
		"healthy_services":       healthy,
		"unhealthy_services":     len(statuses) - healthy,
		"critical_services_down": criticalDown,
		"overall_status":         overall,
		"services":               services,
	}
}

// TestService runs a one-off connectivity test against a named service.
func (g *Gateway) TestService(ctx context.Context, name string) map[string]any {
	result := g.checker.CheckService(ctx, name)
	response := map[string]any{
		"service": name,
		"status":  result.Status,
	}
	if result.ResponseTime != nil {
		response["response_time_seconds"] = *result.ResponseTime
	}
	if result.Error != "" {
		response["error"] = result.Error
	}
	return response
}

// ClearCache drops every sync cache entry and reports how many were evicted.
func (g *Gateway) ClearCache() int {
	return g.cache.clear()
}

func (g *Gateway) get(ctx context.Context, service, endpoint string, params url.Values) map[string]any {
	caller, ok := g.callers[service]
	if !ok {
		return failed(fmt.Sprintf("service %s not configured", service))
	}
	payload, err := caller.Get(ctx, endpoint, params)
	if err != nil {
		g.logger.Warn().Err(err).Str("service", service).Str("endpoint", endpoint).Msg("downstream call failed")
		return failed(err.Error())
	}
	return payload
}

func (g *Gateway) post(ctx context.Context, service, endpoint string, body any) map[string]any {
	caller, ok := g.callers[service]
	if !ok {
		return failed(fmt.Sprintf("service %s not configured", service))
	}
	payload, err := caller.Post(ctx, endpoint, body)
	if err != nil {
		g.logger.Warn().Err(err).Str("service", service).Str("endpoint", endpoint).Msg("downstream call failed")
		return failed(err.Error())
	}
	return payload
}

func failed(message string) map[string]any {
	return map[string]any{
		"error":  message,
		"status": "failed",
	}
}

func validity(response map[string]any) string {
	if _, hasError := response["error"]; hasError {
		return "invalid"
	}
	return "valid"
}

func syncStatus(soil, weather map[string]any) string {
	if validity(soil) == "invalid" || validity(weather) == "invalid" {
		return "partial"
	}
	return "ok"
}

func stringField(payload map[string]any, key string) (string, bool) {
	value, ok := payload[key]
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

func syncKey(fieldID, userID string) string {
	return fieldID + "|" + userID
}
