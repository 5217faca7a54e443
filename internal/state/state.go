package state

import (
	"context"
	"time"

	"github.com/agrimesh/fieldlink/internal/registry"
)

// Snapshot captures the last-notified status per service so a restart does
// not re-alert on failures that were already reported.
type Snapshot struct {
	Statuses map[string]registry.Status `json:"statuses"`
	SavedAt  time.Time                  `json:"saved_at"`
}

// Store defines the interface for persisting snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}
