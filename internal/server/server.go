package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

// Start launches the API server and, when a separate metrics port is
// configured, a standalone metrics server.
func Start(ctx context.Context, logger zerolog.Logger, handler http.Handler, collectors *metrics.Metrics, httpPort, metricsPort int) {
	if httpPort > 0 {
		startServer(ctx, logger, handler, httpPort, "api")
	}

	if metricsPort > 0 && metricsPort != httpPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collectors.Handler())
		startServer(ctx, logger, mux, metricsPort, "metrics")
	}
}

func startServer(ctx context.Context, logger zerolog.Logger, handler http.Handler, port int, label string) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("server", label).Int("port", port).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("server", label).Int("port", port).Msg("http server shutdown failed")
		}
	}()
}
