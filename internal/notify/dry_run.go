package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agrimesh/fieldlink/internal/transition"
)

// DryRunNotifier logs transitions without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, transitions []transition.ServiceTransition) error {
	for _, change := range transitions {
		n.logger.Info().
			Str("service", change.Name).
			Str("previous_status", string(change.Previous)).
			Str("current_status", string(change.Current)).
			Bool("critical", change.Critical).
			Str("error", change.Error).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}
