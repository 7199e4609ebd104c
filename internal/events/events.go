// Package events carries the domain events the scheduling state machines use
// to talk to each other instead of writing each other's rows.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Type names a domain event. It doubles as the RabbitMQ routing key.
type Type string

const (
	SessionStarted   Type = "session.started"
	SessionEnded     Type = "session.ended"
	SessionCancelled Type = "session.cancelled"

	AssignmentOffered   Type = "assignment.offered"
	AssignmentAccepted  Type = "assignment.accepted"
	AssignmentRejected  Type = "assignment.rejected"
	AssignmentCancelled Type = "assignment.cancelled"
	AssignmentCompleted Type = "assignment.completed"

	TripStatusChanged Type = "trip.status_changed"
	TripCompleted     Type = "trip.completed"
	TripCancelled     Type = "trip.cancelled"
)

// Event is a fact that already happened and was persisted.
type Event struct {
	Type         Type      `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	TripID       string    `json:"trip_id,omitempty"`
	DriverID     string    `json:"driver_id,omitempty"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	Role         string    `json:"role,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// Handler reacts to one event.
type Handler func(ctx context.Context, e Event) error

// Publisher is what the state machines depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus dispatches events synchronously, in subscription order, on the publisher's goroutine.
// SubscribeAll handlers run before the typed ones, so an observer of every event sees
// an event before anything a typed handler publishes in reaction to it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers h for the given event types.
func (b *Bus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], h)
	}
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish runs every matching handler. A failing handler does not stop the others;
// all failures are joined into the returned error.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	hs = append(hs, b.all...)
	hs = append(hs, b.handlers[e.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", e.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
