// Package registry holds the immutable downstream service descriptor table
// and the mutable per-service status table derived from it. The descriptor
// set is fixed at startup; statuses are mutated only through RecordProbe and
// RecordError, under a lock so concurrent health checks stay consistent.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/agrimesh/fieldlink/internal/config"
)

// Status is the health state of one downstream service.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
)

// Descriptor is the immutable configuration record for one downstream service.
type Descriptor struct {
	Name          string
	BaseURL       string
	Endpoints     map[string]string
	Timeout       time.Duration
	RetryAttempts int
	Critical      bool
}

// Endpoint resolves a logical endpoint name to its path. The health endpoint
// falls back to config.DefaultHealthPath when not mapped.
func (d Descriptor) Endpoint(logical string) (string, bool) {
	if path, ok := d.Endpoints[logical]; ok {
		return path, true
	}
	if logical == "health" {
		return config.DefaultHealthPath, true
	}
	return "", false
}

// ServiceStatus is the mutable health record for one downstream service.
type ServiceStatus struct {
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	LastCheck    *time.Time `json:"last_check"`
	ResponseTime *float64   `json:"response_time_seconds"`
	ErrorCount   int        `json:"error_count"`
	LastError    string     `json:"last_error,omitempty"`
	Critical     bool       `json:"critical"`
}

// Registry indexes service descriptors by name and tracks their statuses.
// The key set is fixed at construction and never changes.
type Registry struct {
	descriptors map[string]Descriptor
	names       []string

	mu       sync.RWMutex
	statuses map[string]*ServiceStatus
	now      func() time.Time
}

// New builds a Registry from validated service entries. Every service starts
// in status unknown.
func New(entries []config.ServiceEntry) *Registry {
	descriptors := make([]Descriptor, 0, len(entries))
	for _, entry := range entries {
		attempts := config.DefaultRetryAttempts
		if entry.RetryAttempts != nil {
			attempts = *entry.RetryAttempts
		}
		endpoints := make(map[string]string, len(entry.Endpoints))
		for logical, path := range entry.Endpoints {
			endpoints[logical] = path
		}
		descriptors = append(descriptors, Descriptor{
			Name:          entry.Name,
			BaseURL:       entry.BaseURL,
			Endpoints:     endpoints,
			Timeout:       time.Duration(entry.Timeout * float64(time.Second)),
			RetryAttempts: attempts,
			Critical:      entry.Critical,
		})
	}
	return FromDescriptors(descriptors)
}

// FromDescriptors builds a Registry directly from descriptors.
func FromDescriptors(descriptors []Descriptor) *Registry {
	r := &Registry{
		descriptors: make(map[string]Descriptor, len(descriptors)),
		statuses:    make(map[string]*ServiceStatus, len(descriptors)),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, desc := range descriptors {
		r.descriptors[desc.Name] = desc
		r.names = append(r.names, desc.Name)
		r.statuses[desc.Name] = &ServiceStatus{
			Name:     desc.Name,
			Status:   StatusUnknown,
			Critical: desc.Critical,
		}
	}
	sort.Strings(r.names)
	return r
}

// Descriptor returns the descriptor for the given service name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	desc, ok := r.descriptors[name]
	return desc, ok
}

// Names returns all configured service names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of configured services.
func (r *Registry) Len() int {
	return len(r.names)
}

// RecordProbe records the outcome of a completed health probe: healthy or
// unhealthy, the elapsed time, and a reset error count.
func (r *Registry) RecordProbe(name string, healthy bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[name]
	if !ok {
		return
	}

	now := r.now()
	seconds := elapsed.Seconds()
	status.LastCheck = &now
	status.ResponseTime = &seconds
	status.ErrorCount = 0
	status.LastError = ""
	if healthy {
		status.Status = StatusHealthy
	} else {
		status.Status = StatusUnhealthy
	}
}

// RecordError records a failed probe attempt, incrementing the error count.
func (r *Registry) RecordError(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[name]
	if !ok {
		return
	}

	now := r.now()
	status.LastCheck = &now
	status.ResponseTime = nil
	status.ErrorCount++
	status.Status = StatusError
	if err != nil {
		status.LastError = err.Error()
	}
}

// Status returns a copy of the status record for the given service.
func (r *Registry) Status(name string) (ServiceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[name]
	if !ok {
		return ServiceStatus{}, false
	}
	return cloneStatus(status), true
}

// Statuses returns copies of all status records in sorted name order.
func (r *Registry) Statuses() []ServiceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ServiceStatus, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, cloneStatus(r.statuses[name]))
	}
	return result
}

// StatusSnapshot returns the current status of every service keyed by name.
func (r *Registry) StatusSnapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Status, len(r.statuses))
	for name, status := range r.statuses {
		snapshot[name] = status.Status
	}
	return snapshot
}

func cloneStatus(status *ServiceStatus) ServiceStatus {
	copied := *status
	if status.LastCheck != nil {
		check := *status.LastCheck
		copied.LastCheck = &check
	}
	if status.ResponseTime != nil {
		rt := *status.ResponseTime
		copied.ResponseTime = &rt
	}
	return copied
}
