// Package audit carries the structured audit trail of the custody engine.
//
// Every mutating operation emits exactly one Event after its state change
// commits. Events flow to a Sink; the engine never reads them back, so a
// sink may persist, count, log or simply record them for tests.
//
// Field names are fixed per action (snake_case) because external indexers
// key on them. Field values are restricted to strings, integers, booleans,
// and lists of those, so every event has a canonical JSON form and a
// content-addressed id.
package audit

import (
	"context"
	"sync"
)

// Fields holds the action-specific payload of an event.
type Fields map[string]any

// Event is one audit record.
type Event struct {
	ID        string `json:"id"`         // Content-addressed, see EventID
	Seq       int64  `json:"seq"`        // Engine-assigned, strictly increasing
	RequestID string `json:"request_id"` // Correlates the events of one request
	Action    string `json:"action"`     // Operation name
	Caller    string `json:"caller"`
	Tick      uint64 `json:"tick"`
	Fields    Fields `json:"fields"`
}

// Sink receives committed audit events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Fanout delivers each event to every sink in order and returns the
// first error after all sinks have been tried.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, s := range f {
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps events in memory.
//
// Thread-safety: Recorder is safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the action names in emission order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

// Last returns the most recent event and false if none were recorded.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
