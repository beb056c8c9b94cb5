package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives audit events. It is append-only so tests can swap sinks
// easily.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher queues audit events for background delivery. Emit never blocks
// a domain operation: when the inbox is full the event is dropped and
// counted against the log instead.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher with the given inbox capacity.
func NewPublisher(capacity int, logger *slog.Logger) *Publisher {
	if capacity <= 0 {
		capacity = 256
	}
	return &Publisher{
		inbox:  make(chan Event, capacity),
		logger: logger,
		now:    time.Now,
	}
}

// Emit enqueues an event. Safe on a nil Publisher.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping event",
			"action", event.Action, "actor", event.Actor.Short())
	}
}

// Inbox exposes the event channel for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// MemorySink collects events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements Sink.
func (s *MemorySink) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
