package notify

import (
	"context"

	"github.com/agrimesh/fieldlink/internal/transition"
)

// Notifier delivers service status transition alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, transitions []transition.ServiceTransition) error
}
