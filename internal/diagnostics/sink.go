// Package diagnostics records rejected downloads together with a
// correlation ID and timestamp.
//
// The calling layer owns the sinks and injects them where needed; nothing
// in this package is process-global. Sinks:
//
//   - FileSink: the plain-text error log, truncated when opened
//   - PostgresSink: the rejection_log table, queryable and purgeable
//   - Multi: fans one event out to several sinks
package diagnostics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded rejection.
type Event struct {
	ID      uuid.UUID `json:"id"`
	Time    time.Time `json:"time"`
	File    string    `json:"file,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message"`
}

// NewEvent creates an event with a fresh correlation ID stamped now.
func NewEvent(file, kind, message string) Event {
	return Event{
		ID:      uuid.New(),
		Time:    time.Now(),
		File:    file,
		Kind:    kind,
		Message: message,
	}
}

// Sink records rejection events.
type Sink interface {
	RecordRejection(ctx context.Context, ev Event) error
}

// Lister returns recorded events, newest last.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Counter reports how many events a log holds.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Multi returns a sink that records to every given sink. All sinks are
// attempted; their errors are joined.
func Multi(sinks ...Sink) Sink {
	var flat []Sink
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return multiSink(flat)
}

type multiSink []Sink

func (m multiSink) RecordRejection(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.RecordRejection(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) RecordRejection(context.Context, Event) error { return nil }
