package log

import (
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Logger is the interface applications implement to receive protocol log events.
// Pass nil or NoopLogger to disable logging.
type Logger interface {
	// Log records a protocol event. Implementations must be thread-safe.
	// The event should be processed quickly or queued; blocking affects performance.
	Log(event Event)
}

// NoopLogger discards all events. Use when logging is disabled.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
// Analytics batches can exceed 3 KiB; only their header is interesting.
const MaxFrameCapture = 64

// Emitter stamps events for one link with its connection and device IDs.
// A zero or nil Emitter discards everything.
type Emitter struct {
	logger       Logger
	connectionID string
	deviceID     string
	now          func() time.Time
}

// NewEmitter creates an Emitter. A nil logger yields a no-op emitter.
func NewEmitter(logger Logger, connectionID, deviceID string) *Emitter {
	return &Emitter{
		logger:       logger,
		connectionID: connectionID,
		deviceID:     deviceID,
		now:          time.Now,
	}
}

// ConnectionID returns the link's connection ID.
func (e *Emitter) ConnectionID() string {
	if e == nil {
		return ""
	}
	return e.connectionID
}

func (e *Emitter) emit(ev Event) {
	if e == nil || e.logger == nil {
		return
	}
	ev.Timestamp = e.now()
	ev.ConnectionID = e.connectionID
	ev.DeviceID = e.deviceID
	e.logger.Log(ev)
}

// Frame records raw bytes crossing the transport.
func (e *Emitter) Frame(dir Direction, data []byte) {
	if e == nil || e.logger == nil {
		return
	}
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameCapture {
		fe.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	e.emit(Event{Direction: dir, Layer: LayerTransport, Category: CategoryMessage, Frame: fe})
}

// Command records an encoded command about to be written.
func (e *Emitter) Command(op wire.Opcode) {
	e.emit(Event{
		Direction: DirectionOut,
		Layer:     LayerWire,
		Category:  CategoryMessage,
		Message:   &MessageEvent{Type: MessageTypeCommand, Opcode: &op},
	})
}

// Response records a decoded response. A zero rtt marks it unsolicited.
func (e *Emitter) Response(resp wire.Response, rtt time.Duration) {
	msg := &MessageEvent{Type: MessageTypeUnsolicited}
	if rtt > 0 {
		msg.Type = MessageTypeResponse
		msg.RoundTrip = &rtt
	}
	m := resp.Marker()
	msg.Marker = &m
	if ack, ok := resp.(wire.AckError); ok {
		code := ack.Envelope.Code
		msg.ErrorCode = &code
	}
	e.emit(Event{Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage, Message: msg})
}

// State records a lifecycle transition.
func (e *Emitter) State(entity StateEntity, from, to, reason string) {
	e.emit(Event{
		Layer:    LayerService,
		Category: CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

// Error records a failure at the given layer. code is nil for local failures.
func (e *Emitter) Error(layer Layer, context string, err error, code *int) {
	if err == nil {
		return
	}
	e.emit(Event{
		Layer:    layer,
		Category: CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Code:    code,
			Context: context,
		},
	})
}
