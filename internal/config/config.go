package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envServicesFile    = "FL_SERVICES_FILE"
	envPollInterval    = "FL_POLL_INTERVAL"
	envHTTPPort        = "FL_HTTP_PORT"
	envMetricsPort     = "FL_METRICS_PORT"
	envSyncCacheTTL    = "FL_SYNC_CACHE_TTL"
	envSlackWebhookURL = "FL_SLACK_WEBHOOK_URL"
	envWebhookURL      = "FL_WEBHOOK_URL"
	envWebhookTemplate = "FL_WEBHOOK_TEMPLATE"
	envStatePath       = "FL_STATE_PATH"
	envDryRun          = "FL_DRY_RUN"
	envLogLevel        = "FL_LOG_LEVEL"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultHTTPPort     = 8080
	defaultSyncCacheTTL = 5 * time.Minute
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	ServicesFile    string
	PollInterval    time.Duration
	HTTPPort        int
	MetricsPort     int
	SyncCacheTTL    time.Duration
	SlackWebhookURL string
	WebhookURL      string
	WebhookTemplate string
	StatePath       string
	DryRun          bool
	LogLevel        string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval: defaultPollInterval,
		HTTPPort:     defaultHTTPPort,
		SyncCacheTTL: defaultSyncCacheTTL,
	}

	if value, ok := lookupTrimmed(envServicesFile); ok {
		cfg.ServicesFile = value
	}
	if cfg.ServicesFile == "" {
		return Config{}, errors.New("FL_SERVICES_FILE is required")
	}

	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollInterval, err)
		}
		if interval <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envPollInterval)
		}
		cfg.PollInterval = interval
	}

	if value, ok := lookupTrimmed(envSyncCacheTTL); ok {
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envSyncCacheTTL, err)
		}
		if ttl <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envSyncCacheTTL)
		}
		cfg.SyncCacheTTL = ttl
	}

	if port, ok, err := lookupPort(envHTTPPort); err != nil {
		return Config{}, err
	} else if ok {
		cfg.HTTPPort = port
	}

	if port, ok, err := lookupPort(envMetricsPort); err != nil {
		return Config{}, err
	} else if ok {
		cfg.MetricsPort = port
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}
	if value, ok := lookupTrimmed(envStatePath); ok {
		cfg.StatePath = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envDryRun); ok {
		dryRun, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = dryRun
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func lookupPort(key string) (int, bool, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, false, fmt.Errorf("%s must be between 0 and 65535", key)
	}
	return port, true, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}
