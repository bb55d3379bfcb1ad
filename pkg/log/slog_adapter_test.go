package log

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

func newBufferAdapter(level slog.Level) (*SlogAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewSlogAdapter(slog.New(h)), &buf
}

func TestSlogAdapterFrame(t *testing.T) {
	a, buf := newBufferAdapter(slog.LevelDebug)
	a.Log(Event{
		ConnectionID: "conn-1",
		DeviceID:     "AA:BB",
		Direction:    DirectionOut,
		Frame:        &FrameEvent{Size: 4, Data: []byte{0x03, 0xc8, 0xff, 0xff}},
	})

	out := buf.String()
	for _, want := range []string{`msg="protocol frame"`, "conn_id=conn-1", "device_id=AA:BB", "direction=OUT", "frame=03c8ffff", "frame_size=4"} {
		assert.Contains(t, out, want)
	}
}

func TestSlogAdapterMessage(t *testing.T) {
	a, buf := newBufferAdapter(slog.LevelDebug)
	op := wire.OpCommitConfig
	rtt := 15 * time.Millisecond
	a.Log(Event{Message: &MessageEvent{Type: MessageTypeResponse, Opcode: &op, RoundTrip: &rtt}})

	assert.Contains(t, buf.String(), "msg_type=RESPONSE")
	assert.Contains(t, buf.String(), "round_trip=15ms")
}

func TestSlogAdapterStateAndError(t *testing.T) {
	a, buf := newBufferAdapter(slog.LevelDebug)
	a.Log(Event{StateChange: &StateChangeEvent{Entity: StateEntityConnection, OldState: "scanning", NewState: "connected", Reason: "matched"}})
	code := 8
	a.Log(Event{Error: &ErrorEventData{Layer: LayerWire, Message: "not owner", Code: &code, Context: "verify"}})

	out := buf.String()
	for _, want := range []string{"entity=CONNECTION", "new_state=connected", "reason=matched", "level=WARN", "error_code=8", "error_context=verify"} {
		assert.Contains(t, out, want)
	}
}

func TestSlogAdapterLevels(t *testing.T) {
	a, buf := newBufferAdapter(slog.LevelInfo)
	a.Log(Event{Frame: &FrameEvent{Size: 1, Data: []byte{0x10}}})
	assert.Empty(t, buf.String())

	a.Log(Event{Error: &ErrorEventData{Message: "link lost"}})
	assert.Contains(t, buf.String(), "error_msg=\"link lost\"")
}
