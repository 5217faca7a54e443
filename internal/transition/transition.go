package transition

import (
	"sort"

	"github.com/agrimesh/fieldlink/internal/registry"
)

// ServiceTransition captures one service's status change between poll cycles.
type ServiceTransition struct {
	Name         string          `json:"name"`
	Previous     registry.Status `json:"previous_status"`
	Current      registry.Status `json:"current_status"`
	Critical     bool            `json:"critical"`
	Error        string          `json:"error,omitempty"`
	ResponseTime *float64        `json:"response_time_seconds,omitempty"`
}

// Detect compares the previously notified statuses with the current cycle's
// statuses and emits one transition per change. On the first cycle only
// services that are not healthy are reported; afterwards only actual status
// changes are.
func Detect(previous map[string]registry.Status, current []registry.ServiceStatus) []ServiceTransition {
	firstRun := len(previous) == 0

	transitions := make([]ServiceTransition, 0)
	for _, status := range current {
		prevStatus, hadPrev := previous[status.Name]

		if firstRun {
			if status.Status == registry.StatusHealthy || status.Status == registry.StatusUnknown {
				continue
			}
			prevStatus = registry.StatusUnknown
		} else if hadPrev {
			if prevStatus == status.Status {
				continue
			}
		} else if status.Status == registry.StatusHealthy {
			continue
		}

		if prevStatus == "" {
			prevStatus = registry.StatusUnknown
		}

		transitions = append(transitions, ServiceTransition{
			Name:         status.Name,
			Previous:     prevStatus,
			Current:      status.Status,
			Critical:     status.Critical,
			Error:        status.LastError,
			ResponseTime: status.ResponseTime,
		})
	}

	// Sort by service name for deterministic output
	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Name < transitions[j].Name
	})

	return transitions
}
