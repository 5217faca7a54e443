package transition

import (
	"testing"

	"github.com/agrimesh/fieldlink/internal/registry"
)

func status(name string, s registry.Status, critical bool) registry.ServiceStatus {
	return registry.ServiceStatus{Name: name, Status: s, Critical: critical}
}

func TestDetect_FirstRunReportsOnlyFailures(t *testing.T) {
	current := []registry.ServiceStatus{
		status("soil-data", registry.StatusHealthy, true),
		status("weather-data", registry.StatusError, false),
		status("fertilizer-price", registry.StatusUnknown, false),
	}

	transitions := Detect(nil, current)
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].Name != "weather-data" || transitions[0].Current != registry.StatusError {
		t.Fatalf("unexpected transition: %+v", transitions[0])
	}
	if transitions[0].Previous != registry.StatusUnknown {
		t.Fatalf("expected unknown previous on first run, got %s", transitions[0].Previous)
	}
}

func TestDetect_ReportsChangesOnly(t *testing.T) {
	previous := map[string]registry.Status{
		"soil-data":    registry.StatusHealthy,
		"weather-data": registry.StatusError,
	}
	current := []registry.ServiceStatus{
		status("soil-data", registry.StatusError, true),
		status("weather-data", registry.StatusError, false),
	}

	transitions := Detect(previous, current)
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	got := transitions[0]
	if got.Name != "soil-data" || got.Previous != registry.StatusHealthy || got.Current != registry.StatusError {
		t.Fatalf("unexpected transition: %+v", got)
	}
	if !got.Critical {
		t.Fatalf("expected critical flag carried through")
	}
}

func TestDetect_RecoveryIsReported(t *testing.T) {
	previous := map[string]registry.Status{"soil-data": registry.StatusError}
	current := []registry.ServiceStatus{status("soil-data", registry.StatusHealthy, false)}

	transitions := Detect(previous, current)
	if len(transitions) != 1 {
		t.Fatalf("expected recovery transition, got %d", len(transitions))
	}
	if transitions[0].Current != registry.StatusHealthy {
		t.Fatalf("unexpected transition: %+v", transitions[0])
	}
}

func TestDetect_SortedByName(t *testing.T) {
	previous := map[string]registry.Status{
		"weather-data": registry.StatusHealthy,
		"soil-data":    registry.StatusHealthy,
	}
	current := []registry.ServiceStatus{
		status("weather-data", registry.StatusError, false),
		status("soil-data", registry.StatusError, false),
	}

	transitions := Detect(previous, current)
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].Name != "soil-data" || transitions[1].Name != "weather-data" {
		t.Fatalf("expected deterministic order, got %s then %s", transitions[0].Name, transitions[1].Name)
	}
}

func TestDetect_NoChanges(t *testing.T) {
	previous := map[string]registry.Status{"soil-data": registry.StatusHealthy}
	current := []registry.ServiceStatus{status("soil-data", registry.StatusHealthy, false)}

	if transitions := Detect(previous, current); len(transitions) != 0 {
		t.Fatalf("expected no transitions, got %+v", transitions)
	}
}
