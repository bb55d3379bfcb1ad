package log

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// captureLogger records events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestNoopLoggerIsZeroValue(t *testing.T) {
	var logger NoopLogger
	logger.Log(Event{})
}

func TestEmitterStampsIDs(t *testing.T) {
	c := &captureLogger{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEmitter(c, "conn-1", "AA:BB")
	e.now = func() time.Time { return fixed }

	e.Command(wire.OpEnterConfig)
	e.State(StateEntitySession, "idle", "entering", "")

	events := c.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.ConnectionID != "conn-1" || ev.DeviceID != "AA:BB" {
			t.Errorf("ids = %q/%q", ev.ConnectionID, ev.DeviceID)
		}
		if !ev.Timestamp.Equal(fixed) {
			t.Errorf("timestamp = %v", ev.Timestamp)
		}
	}
	if *events[0].Message.Opcode != wire.OpEnterConfig {
		t.Errorf("opcode = %v", *events[0].Message.Opcode)
	}
	if events[1].StateChange.NewState != "entering" {
		t.Errorf("new state = %q", events[1].StateChange.NewState)
	}
}

func TestEmitterFrameTruncates(t *testing.T) {
	c := &captureLogger{}
	e := NewEmitter(c, "c", "d")

	e.Frame(DirectionIn, make([]byte, MaxFrameCapture+10))
	e.Frame(DirectionOut, []byte{0x10})

	events := c.all()
	big := events[0].Frame
	if big.Size != MaxFrameCapture+10 || len(big.Data) != MaxFrameCapture || !big.Truncated {
		t.Errorf("big frame = size %d, data %d, truncated %v", big.Size, len(big.Data), big.Truncated)
	}
	small := events[1].Frame
	if small.Truncated || len(small.Data) != 1 {
		t.Errorf("small frame = %+v", small)
	}
}

func TestEmitterResponse(t *testing.T) {
	c := &captureLogger{}
	e := NewEmitter(c, "c", "d")

	e.Response(wire.AckError{Envelope: wire.NewErrorEnvelope(wire.ErrorNotOwner, "")}, 20*time.Millisecond)
	e.Response(wire.AckSuccess{}, 0)

	events := c.all()
	m := events[0].Message
	if m.Type != MessageTypeResponse || *m.Marker != wire.MarkerAckError || *m.ErrorCode != wire.ErrorNotOwner {
		t.Errorf("error response = %+v", m)
	}
	if *m.RoundTrip != 20*time.Millisecond {
		t.Errorf("rtt = %v", *m.RoundTrip)
	}
	if events[1].Message.Type != MessageTypeUnsolicited || events[1].Message.RoundTrip != nil {
		t.Errorf("unsolicited = %+v", events[1].Message)
	}
}

func TestEmitterErrorAndNil(t *testing.T) {
	c := &captureLogger{}
	e := NewEmitter(c, "c", "d")
	e.Error(LayerService, "commit", nil, nil)
	code := 6
	e.Error(LayerWire, "commit", errors.New("flash"), &code)

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Category != CategoryError || *events[0].Error.Code != 6 {
		t.Errorf("error event = %+v", events[0].Error)
	}

	var nilEmitter *Emitter
	nilEmitter.Command(wire.OpExitConfig)
	NewEmitter(nil, "c", "d").Frame(DirectionIn, []byte{1})
	if nilEmitter.ConnectionID() != "" {
		t.Error("nil emitter has a connection id")
	}
}
