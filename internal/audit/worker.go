package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a publisher's inbox and appends them
// to a sink. Sink failures are logged and the worker keeps draining; a
// broken audit pipeline must never back-pressure domain operations.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

// NewWorker creates a Worker draining inbox into sink.
func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.Warn("audit append failed",
					"action", event.Action, "error", err)
			}
		}
	}
}
