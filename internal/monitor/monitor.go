// Package monitor drives the background poll loop: every interval it probes
// all configured services, diffs statuses against the last notified cycle,
// and dispatches alerts for transitions.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/notify"
	"github.com/agrimesh/fieldlink/internal/registry"
	"github.com/agrimesh/fieldlink/internal/state"
	"github.com/agrimesh/fieldlink/internal/transition"
)

// Ticker is the minimal interface needed for driving the monitor loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Monitor orchestrates the poll loop.
type Monitor struct {
	logger        zerolog.Logger
	pollInterval  time.Duration
	tickerFactory func(time.Duration) Ticker
	runOnce       func(context.Context) error
	checker       *health.Checker
	reg           *registry.Registry
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	tracker       *Tracker
	store         state.Store
	lastNotified  map[string]registry.Status
}

// Option customizes monitor behavior.
type Option func(*Monitor)

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(m *Monitor) {
		m.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(m *Monitor) {
		m.runOnce = runOnce
	}
}

// WithNotifier sets the transition alert destination.
func WithNotifier(notifier notify.Notifier) Option {
	return func(m *Monitor) {
		m.notifier = notifier
	}
}

// WithMetrics attaches Prometheus collectors to cycle outcomes.
func WithMetrics(collectors *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = collectors
	}
}

// WithStateStore enables persistence of last-notified statuses.
func WithStateStore(store state.Store) Option {
	return func(m *Monitor) {
		m.store = store
	}
}

// New constructs a Monitor with the given checker and registry.
func New(logger zerolog.Logger, pollInterval time.Duration, checker *health.Checker, reg *registry.Registry, opts ...Option) *Monitor {
	m := &Monitor{
		logger:       logger,
		pollInterval: pollInterval,
		checker:      checker,
		reg:          reg,
		tracker:      NewTracker(),
		lastNotified: map[string]registry.Status{},
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	m.runOnce = m.defaultRunOnce

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Tracker exposes the cycle tracker feeding the health endpoints.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Run starts the poll loop and blocks until the context is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.pollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	if m.store != nil {
		snapshot, err := m.store.Load(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("state load failed, starting fresh")
		} else if len(snapshot.Statuses) > 0 {
			m.lastNotified = snapshot.Statuses
			m.logger.Info().Int("services", len(snapshot.Statuses)).Msg("restored notified statuses")
		}
	}

	// Run immediately on startup
	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error().Err(err).Msg("initial poll cycle failed")
	}

	ticker := m.tickerFactory(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return nil
		case <-ticker.C():
			if err := m.RunOnce(ctx); err != nil {
				m.logger.Error().Err(err).Msg("poll cycle failed")
			}
		}
	}
}

// RunOnce executes a single poll cycle.
func (m *Monitor) RunOnce(ctx context.Context) error {
	return m.runOnce(ctx)
}

func (m *Monitor) defaultRunOnce(ctx context.Context) error {
	start := time.Now()

	results := m.checker.CheckAll(ctx)
	statuses := m.reg.Statuses()

	transitions := transition.Detect(m.lastNotified, statuses)
	if len(transitions) > 0 {
		m.logger.Info().Int("transitions", len(transitions)).Msg("service status transitions detected")
		for _, change := range transitions {
			m.metrics.IncAlertsTotal(change.Name, string(change.Current))
		}
		if m.notifier != nil {
			if err := m.notifier.Notify(ctx, transitions); err != nil {
				m.logger.Error().Err(err).Msg("notification delivery failed")
			}
		}
	}

	notified := make(map[string]registry.Status, len(statuses))
	for _, status := range statuses {
		notified[status.Name] = status.Status
	}
	m.lastNotified = notified

	if m.store != nil {
		snapshot := state.Snapshot{Statuses: notified, SavedAt: time.Now().UTC()}
		if err := m.store.Save(ctx, snapshot); err != nil {
			m.logger.Warn().Err(err).Msg("state save failed")
		}
	}

	elapsed := time.Since(start)
	m.metrics.ObserveCycleDuration(elapsed)
	m.metrics.SetLastSuccessfulCycleTimestamp(time.Now().UTC())
	m.tracker.RecordCycle(elapsed, len(results))

	m.logger.Debug().
		Int("services", len(results)).
		Dur("elapsed", elapsed).
		Msg("poll cycle completed")

	return nil
}
