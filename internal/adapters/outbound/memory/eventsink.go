package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("event sink closed")

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink records published events in process. A positive capacity keeps
// only the most recent events.
type EventSink struct {
	mu       sync.Mutex
	events   []outbound.Event
	capacity int
	closed   bool
}

// NewEventSink creates an unbounded in-memory event sink.
func NewEventSink() *EventSink {
	return NewBoundedEventSink(0)
}

// NewBoundedEventSink creates a sink that retains at most capacity events.
func NewBoundedEventSink(capacity int) *EventSink {
	return &EventSink{capacity: max(capacity, 0)}
}

// Publish implements outbound.EventSink.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	s.events = append(s.events, event)
	if s.capacity > 0 && len(s.events) > s.capacity {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.capacity:]...)
	}
	return nil
}

// Close implements outbound.EventSink.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetEvents returns a copy of the retained events, oldest first.
func (s *EventSink) GetEvents() []outbound.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbound.Event(nil), s.events...)
}

// GetPredictionEvents returns the retained prediction events, oldest first.
func (s *EventSink) GetPredictionEvents() []outbound.PredictionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbound.PredictionEvent
	for _, e := range s.events {
		if pe, ok := e.(outbound.PredictionEvent); ok {
			out = append(out, pe)
		}
	}
	return out
}

// EventsFor returns the retained events for one transaction.
func (s *EventSink) EventsFor(transactionID string) []outbound.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbound.Event
	for _, e := range s.events {
		if e.GetTransactionID() == transactionID {
			out = append(out, e)
		}
	}
	return out
}
