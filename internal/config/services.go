package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimeoutSeconds applies when a service entry omits timeout.
	DefaultTimeoutSeconds = 30
	// DefaultRetryAttempts applies when a service entry omits retry_attempts.
	DefaultRetryAttempts = 3
	// DefaultHealthPath is probed when a service does not map a health endpoint.
	DefaultHealthPath = "/health"
)

// ServiceEntry describes one downstream service in the registry file.
type ServiceEntry struct {
	Name          string            `yaml:"name"`
	BaseURL       string            `yaml:"base_url"`
	Endpoints     map[string]string `yaml:"endpoints,omitempty"`
	Timeout       float64           `yaml:"timeout,omitempty"`
	RetryAttempts *int              `yaml:"retry_attempts,omitempty"`
	Critical      bool              `yaml:"critical,omitempty"`
}

// ServicesFile is the parsed YAML structure for the service registry:
// services: [{name, base_url, endpoints, timeout, retry_attempts, critical}]
type ServicesFile struct {
	Services []ServiceEntry `yaml:"services"`
}

// LoadServicesFile parses the YAML service registry from the given path
// and applies per-entry defaults.
func LoadServicesFile(path string) ([]ServiceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	var sf ServicesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse services file: %w", err)
	}

	if err := validateServices(sf.Services); err != nil {
		return nil, err
	}

	for i := range sf.Services {
		applyDefaults(&sf.Services[i])
	}

	return sf.Services, nil
}

func applyDefaults(entry *ServiceEntry) {
	if entry.Timeout == 0 {
		entry.Timeout = DefaultTimeoutSeconds
	}
	if entry.RetryAttempts == nil {
		attempts := DefaultRetryAttempts
		entry.RetryAttempts = &attempts
	}
}

func validateServices(entries []ServiceEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("services file contains no services")
	}

	seen := make(map[string]bool)

	for i, entry := range entries {
		if entry.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}

		if entry.BaseURL == "" {
			return fmt.Errorf("service %q: base_url is required", entry.Name)
		}

		if err := validateHTTPURL(entry.BaseURL, "base_url"); err != nil {
			return fmt.Errorf("service %q: %w", entry.Name, err)
		}

		if seen[entry.Name] {
			return fmt.Errorf("service %q: duplicate name", entry.Name)
		}
		seen[entry.Name] = true

		if entry.Timeout < 0 {
			return fmt.Errorf("service %q: timeout cannot be negative", entry.Name)
		}
		if entry.RetryAttempts != nil && *entry.RetryAttempts < 0 {
			return fmt.Errorf("service %q: retry_attempts cannot be negative", entry.Name)
		}

		for logical, path := range entry.Endpoints {
			if logical == "" {
				return fmt.Errorf("service %q: endpoint name is required", entry.Name)
			}
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("service %q: endpoint %q must start with /", entry.Name, logical)
			}
		}
	}

	return nil
}

func validateHTTPURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include host", name)
	}
	return nil
}
