// Package health probes downstream services and records outcomes in the
// registry. A single check issues one logical probe (the transport layer
// handles per-descriptor retries); batch checks fan out concurrently with
// per-service error isolation.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/registry"
)

// Result statuses reported by the checker.
const (
	ResultHealthy   = "healthy"
	ResultUnhealthy = "unhealthy"
	ResultError     = "error"
	ResultNotFound  = "not_found"
)

// Prober performs a single liveness probe against one service.
type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

// Result describes the outcome of one health check.
type Result struct {
	Status       string   `json:"status"`
	ResponseTime *float64 `json:"response_time_seconds,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Checker probes configured services and updates their registry status.
type Checker struct {
	logger  zerolog.Logger
	reg     *registry.Registry
	probers map[string]Prober
	metrics *metrics.Metrics
}

// Option customizes checker behavior.
type Option func(*Checker)

// WithMetrics attaches Prometheus collectors to probe outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// New constructs a Checker over the given registry and per-service probers.
func New(logger zerolog.Logger, reg *registry.Registry, probers map[string]Prober, opts ...Option) *Checker {
	c := &Checker{
		logger:  logger,
		reg:     reg,
		probers: probers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckService probes one service and updates its status in place. Unknown
// names yield a not_found result and mutate nothing. It never returns an
// error; every failure mode is folded into the Result.
func (c *Checker) CheckService(ctx context.Context, name string) Result {
	if _, ok := c.reg.Descriptor(name); !ok {
		return Result{
			Status: ResultNotFound,
			Error:  fmt.Sprintf("service %s not configured", name),
		}
	}

	prober, ok := c.probers[name]
	if !ok {
		err := fmt.Errorf("no client for service %s", name)
		c.reg.RecordError(name, err)
		return Result{Status: ResultError, Error: err.Error()}
	}

	start := time.Now()
	healthy, err := prober.Probe(ctx)
	elapsed := time.Since(start)

	c.metrics.ObserveProbeDuration(name, elapsed)

	if err != nil {
		c.reg.RecordError(name, err)
		c.metrics.IncProbeErrors(name)
		c.metrics.SetServiceUp(name, false)
		c.logger.Warn().Err(err).Str("service", name).Msg("health probe error")
		return Result{Status: ResultError, Error: err.Error()}
	}

	c.reg.RecordProbe(name, healthy, elapsed)
	c.metrics.SetServiceUp(name, healthy)

	seconds := elapsed.Seconds()
	result := Result{ResponseTime: &seconds}
	if healthy {
		result.Status = ResultHealthy
	} else {
		result.Status = ResultUnhealthy
	}
	return result
}

// CheckAll probes every configured service concurrently and returns exactly
// one result per service. Individual failures never abort the batch, and
// completion order is unspecified.
func (c *Checker) CheckAll(ctx context.Context) map[string]Result {
	names := c.reg.Names()
	results := make(map[string]Result, len(names))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			result := c.CheckService(gctx, name)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
