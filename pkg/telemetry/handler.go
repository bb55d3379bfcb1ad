// Package telemetry pulls usage analytics from a controller and hands them
// to a Sink.
//
// A batch is confirmed only after every record converted and the sink
// accepted the events. The controller keeps resending an unconfirmed batch,
// so a failure anywhere before the confirm loses nothing. A failed confirm
// is not retried; the next connection sees the same batch again.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// DefaultSettle is the delay between connect and the analytics request.
const DefaultSettle = time.Second

// Telemetry errors.
var (
	ErrInvalidRecord      = errors.New("session ends before it starts")
	ErrUnexpectedResponse = errors.New("unexpected response to analytics request")
)

// Commander sends one command and waits for its response.
type Commander interface {
	Do(ctx context.Context, cmd wire.Command) (wire.Response, error)
}

// Config configures a Handler.
type Config struct {
	// Settle is how long Run waits before requesting analytics.
	Settle time.Duration

	// Sink receives converted events. Nil discards them.
	Sink Sink

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// Now returns the event timestamp. Nil uses time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Settle: DefaultSettle}
}

// Result describes one collection.
type Result struct {
	BatchID   uint32
	Events    []Event
	Confirmed bool
}

// Handler collects analytics batches.
type Handler struct {
	settle time.Duration
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.Sink == nil {
		cfg.Sink = discardSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		settle: cfg.Settle,
		sink:   cfg.Sink,
		logger: logger,
		now:    cfg.Now,
	}
}

// Run waits for the settle delay, then collects one batch. Failures are
// logged; Run is meant to be started in its own goroutine after connect.
func (h *Handler) Run(ctx context.Context, deviceID string, cmd Commander) {
	if h.settle > 0 {
		t := time.NewTimer(h.settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}

	res, err := h.Collect(ctx, deviceID, cmd)
	if err != nil {
		h.logger.Warn("analytics collection failed", "device", deviceID, "error", err)
		return
	}
	h.logger.Info("analytics collected",
		"device", deviceID,
		"batch", res.BatchID,
		"events", len(res.Events))
}

// Collect requests the buffered batch, converts it, records it and
// confirms it.
func (h *Handler) Collect(ctx context.Context, deviceID string, cmd Commander) (*Result, error) {
	resp, err := cmd.Do(ctx, wire.RequestAnalytics{})
	if err != nil {
		return nil, fmt.Errorf("request analytics: %w", err)
	}

	batch, ok := resp.(*wire.AnalyticsBatch)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Marker())
	}

	now := h.now()
	events := make([]Event, 0, len(batch.Sessions)+1)
	for i, rec := range batch.Sessions {
		ev, err := sessionEvent(deviceID, batch.BatchID, rec, now)
		if err != nil {
			return nil, fmt.Errorf("batch %d record %d: %w", batch.BatchID, i, err)
		}
		events = append(events, ev)
	}
	events = append(events, summaryEvent(deviceID, batch, now))

	res := &Result{BatchID: batch.BatchID, Events: events}
	if err := h.sink.Record(ctx, events); err != nil {
		return res, fmt.Errorf("record batch %d: %w", batch.BatchID, err)
	}

	if _, err := cmd.Do(ctx, wire.ConfirmAnalytics{BatchID: batch.BatchID}); err != nil {
		return res, fmt.Errorf("confirm batch %d: %w", batch.BatchID, err)
	}
	res.Confirmed = true
	return res, nil
}
