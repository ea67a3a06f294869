package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/pkg/bus"
)

// EventMessage is the wire form of an extraction event.
type EventMessage struct {
	Kind       string    `json:"kind"`
	DocumentID string    `json:"document_id"`
	Chunk      int       `json:"chunk,omitempty"`
	Pages      string    `json:"pages,omitempty"`
	Model      string    `json:"model,omitempty"`
	File       string    `json:"file,omitempty"`
	Turn       int       `json:"turn,omitempty"`
	Count      int       `json:"count,omitempty"`
	Accepted   int       `json:"accepted,omitempty"`
	Action     string    `json:"action,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// NewEventMessage converts an event for publishing.
func NewEventMessage(e extraction.Event) EventMessage {
	m := EventMessage{
		Kind:       string(e.Kind),
		DocumentID: e.DocumentID,
		Chunk:      e.Chunk,
		Pages:      e.Pages,
		Model:      e.Model,
		File:       e.File,
		Turn:       e.Turn,
		Count:      e.Count,
		Accepted:   e.Accepted,
		Action:     e.Action,
		Reason:     e.Reason,
		DurationMS: e.Duration.Milliseconds(),
		At:         e.At.UTC(),
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

// EventPublisher forwards extraction events to the bus as
// "<subject>.<kind>".
type EventPublisher struct {
	pub     bus.Publisher
	subject string
	logger  *slog.Logger
}

var _ extraction.Observer = (*EventPublisher)(nil)

func NewEventPublisher(pub bus.Publisher, subject string, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{pub: pub, subject: subject, logger: logger}
}

func (p *EventPublisher) Observe(_ context.Context, e extraction.Event) {
	subject := p.subject + "." + string(e.Kind)
	if err := p.pub.Publish(subject, NewEventMessage(e)); err != nil {
		p.logger.Warn("failed to publish extraction event",
			slog.String("subject", subject),
			slog.Any("error", err),
		)
	}
}
