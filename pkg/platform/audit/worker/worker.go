package worker

import (
	"context"
	"log/slog"

	audit "ncc/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists events until ctx is cancelled or the inbox is closed. A closed
// inbox is drained completely before Run returns nil. Append failures are
// logged and the event is dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"error", err,
					"action", event.Action,
					"registration_id", event.RegistrationID,
				)
			}
		}
	}
}
