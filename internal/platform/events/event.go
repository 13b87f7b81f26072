// Package events publishes domain events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Routing keys.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	InvoicePaid              = "invoice.paid"
	RecordAccessed           = "audit.record_accessed"
)

// Event is the envelope written to the exchange. Type doubles as the
// routing key.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, data interface{}) Event {
	return Event{ID: uuid.New(), Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
}

// Matches reports whether eventType is selected by pattern. A pattern is
// "*", an exact type, or a "prefix.*" wildcard.
func Matches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Fanout publishes each event to every member. Failures are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter publishes on a best-effort basis: failures are logged and never
// returned to the caller.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes an event of the given type.
func (e *Emitter) Emit(ctx context.Context, eventType string, data interface{}) {
	ev := New(eventType, data)
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("event_id", ev.ID.String()).
			Msg("failed to publish event")
	}
}

// Memory keeps published events in order. It backs tests and local runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the type of each published event in order.
func (m *Memory) Types() []string {
	evs := m.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
