package extraction

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind names an orchestrator milestone.
type EventKind string

const (
	EventChunkUploaded     EventKind = "chunk_uploaded"
	EventFileReady         EventKind = "file_ready"
	EventTurnCompleted     EventKind = "turn_completed"
	EventDuplicatesDropped EventKind = "duplicates_dropped"
	EventFallbackTriggered EventKind = "fallback_triggered"
	EventChunkCompleted    EventKind = "chunk_completed"
	EventFileDeleted       EventKind = "file_deleted"
)

// Event is emitted at every milestone of a document extraction. Fields that
// do not apply to a kind are left zero.
type Event struct {
	Kind       EventKind
	DocumentID string
	Chunk      int
	Pages      string
	Model      string
	File       string
	Turn       int
	// Count is the per event quantity: parsed records for turns, dropped
	// records for duplicates, accepted records for chunks.
	Count    int
	Accepted int
	Action   string
	Reason   string
	Duration time.Duration
	Err      error
	At       time.Time
}

// Observer receives events. Implementations must not block for long.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(ctx context.Context, e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) Observe(ctx context.Context, e Event) {
	if l.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("event", string(e.Kind)),
		slog.String("document_id", e.DocumentID),
	}
	if e.Chunk > 0 {
		attrs = append(attrs, slog.Int("chunk", e.Chunk), slog.String("pages", e.Pages))
	}
	if e.Model != "" {
		attrs = append(attrs, slog.String("model", e.Model))
	}
	if e.File != "" {
		attrs = append(attrs, slog.String("file", e.File))
	}
	if e.Turn > 0 {
		attrs = append(attrs, slog.Int("turn", e.Turn))
	}
	switch e.Kind {
	case EventTurnCompleted:
		attrs = append(attrs,
			slog.Int("parsed", e.Count),
			slog.Int("accepted", e.Accepted),
			slog.String("action", e.Action),
		)
	case EventDuplicatesDropped:
		attrs = append(attrs, slog.Int("dropped", e.Count))
	case EventChunkCompleted:
		attrs = append(attrs, slog.Int("accepted", e.Accepted))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Int64("duration_ms", e.Duration.Milliseconds()))
	}

	if e.Err != nil {
		l.Logger.WarnContext(ctx, "extraction event", append(attrs, slog.Any("error", e.Err))...)
		return
	}
	l.Logger.InfoContext(ctx, "extraction event", attrs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
