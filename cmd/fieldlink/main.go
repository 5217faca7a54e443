package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/config"
	"github.com/agrimesh/fieldlink/internal/gateway"
	"github.com/agrimesh/fieldlink/internal/health"
	"github.com/agrimesh/fieldlink/internal/logging"
	"github.com/agrimesh/fieldlink/internal/metrics"
	"github.com/agrimesh/fieldlink/internal/monitor"
	"github.com/agrimesh/fieldlink/internal/notify"
	"github.com/agrimesh/fieldlink/internal/registry"
	"github.com/agrimesh/fieldlink/internal/server"
	"github.com/agrimesh/fieldlink/internal/state"
	"github.com/agrimesh/fieldlink/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("")
		bootLogger.Fatal().Err(err).Msg("configuration error")
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info().Str("services_file", cfg.ServicesFile).Msg("fieldlink starting")

	entries, err := config.LoadServicesFile(cfg.ServicesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("service registry error")
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

	gw := gateway.New(logger, reg, callers, checker,
		gateway.WithCacheTTL(cfg.SyncCacheTTL),
		gateway.WithMetrics(collectors),
	)

	notifier := buildNotifier(logger, cfg)

	monitorOpts := []monitor.Option{
		monitor.WithNotifier(notifier),
		monitor.WithMetrics(collectors),
	}
	if cfg.StatePath != "" {
		monitorOpts = append(monitorOpts, monitor.WithStateStore(state.NewFileStore(cfg.StatePath, logger)))
	}
	mon := monitor.New(logger, cfg.PollInterval, checker, reg, monitorOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers := server.NewHandlers(logger, gw, checker, reg, mon.Tracker(), cfg.PollInterval, collectors)
	server.Start(ctx, logger, handlers.Router(), collectors, cfg.HTTPPort, cfg.MetricsPort)

	if err := mon.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("monitor failed")
	}

	logger.Info().Msg("fieldlink stopped")
}

func buildNotifier(logger zerolog.Logger, cfg config.Config) notify.Notifier {
	notifiers := []notify.Notifier{
		notify.NewSlackNotifier(logger, cfg.SlackWebhookURL),
	}

	webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook notifier error")
	}
	if webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier
}
