package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Sink receives the events of one batch. Record either accepts the whole
// slice or returns an error.
type Sink interface {
	Record(ctx context.Context, events []Event) error
}

type discardSink struct{}

func (discardSink) Record(context.Context, []Event) error { return nil }

// SlogSink logs every event at Info level.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Record logs the events.
func (s *SlogSink) Record(ctx context.Context, events []Event) error {
	for _, ev := range events {
		attrs := []slog.Attr{
			slog.String("id", ev.ID),
			slog.String("kind", ev.Kind.String()),
			slog.String("device", ev.DeviceID),
			slog.Any("batch", ev.BatchID),
		}
		switch {
		case ev.Session != nil:
			attrs = append(attrs,
				slog.Time("start", ev.Session.Start),
				slog.Duration("duration", ev.Session.Duration),
				slog.Int("turned_on", int(ev.Session.TurnedOn)),
				slog.Int("turned_off", int(ev.Session.TurnedOff)),
			)
		case ev.Summary != nil:
			attrs = append(attrs,
				slog.Int("sessions", ev.Summary.Received),
				slog.Any("flash_writes", ev.Summary.FlashWrites),
				slog.Any("errors", ev.Summary.ErrorCount),
			)
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "telemetry", attrs...)
	}
	return nil
}

// JSONSink writes one JSON object per event.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink creates a sink writing JSON lines to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// Record encodes the events.
func (s *JSONSink) Record(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if err := s.enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the events.
func (s *MemorySink) Record(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything recorded.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Len returns the number of recorded events.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// MultiSink fans events out to several sinks. Every sink is called; the
// errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink over the non-nil sinks given.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record forwards the events to every sink.
func (m *MultiSink) Record(ctx context.Context, events []Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*JSONSink)(nil)
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*MultiSink)(nil)
)
