package log

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Event is one entry of a protocol capture. Exactly one payload is set.
// Keys are small integers so captures of long sessions stay compact.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"` // one link to one controller
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	DeviceID     string    `cbor:"6,keyasint,omitempty"` // radio address or bridge peer id

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction is relative to the host: in comes from the controller.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Layer is where in the stack an event was recorded.
type Layer uint8

const (
	LayerTransport Layer = iota // raw radio or bridge bytes
	LayerWire                   // decoded commands and responses
	LayerService                // sessions and the connection manager
)

// Category groups events for filtering. Value 1 is unused so existing
// captures keep their meaning.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// MessageType tells commands from the frames that answer them.
type MessageType uint8

const (
	MessageTypeCommand MessageType = iota
	MessageTypeResponse
	// MessageTypeUnsolicited is a frame that arrived with no command pending.
	MessageTypeUnsolicited
)

// StateEntity names the state machine behind a StateChangeEvent.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntitySession
	StateEntityOwnership
)

var (
	directionNames   = map[Direction]string{DirectionIn: "IN", DirectionOut: "OUT"}
	layerNames       = map[Layer]string{LayerTransport: "TRANSPORT", LayerWire: "WIRE", LayerService: "SERVICE"}
	categoryNames    = map[Category]string{CategoryMessage: "MESSAGE", CategoryState: "STATE", CategoryError: "ERROR"}
	messageTypeNames = map[MessageType]string{
		MessageTypeCommand:     "COMMAND",
		MessageTypeResponse:    "RESPONSE",
		MessageTypeUnsolicited: "UNSOLICITED",
	}
	entityNames = map[StateEntity]string{
		StateEntityConnection: "CONNECTION",
		StateEntitySession:    "SESSION",
		StateEntityOwnership:  "OWNERSHIP",
	}
)

func nameOf[T comparable](names map[T]string, v T) string {
	if n, ok := names[v]; ok {
		return n
	}
	return "UNKNOWN"
}

// parseName looks s up case-insensitively among names.
func parseName[T comparable](kind string, names map[T]string, s string) (T, error) {
	for v, n := range names {
		if strings.EqualFold(n, s) {
			return v, nil
		}
	}
	valid := make([]string, 0, len(names))
	for _, n := range names {
		valid = append(valid, strings.ToLower(n))
	}
	slices.Sort(valid)
	var zero T
	return zero, fmt.Errorf("invalid %s: %s (one of %s)", kind, s, strings.Join(valid, ", "))
}

func (d Direction) String() string   { return nameOf(directionNames, d) }
func (l Layer) String() string       { return nameOf(layerNames, l) }
func (c Category) String() string    { return nameOf(categoryNames, c) }
func (m MessageType) String() string { return nameOf(messageTypeNames, m) }
func (s StateEntity) String() string { return nameOf(entityNames, s) }

// ParseDirection accepts "in" or "out" in any case.
func ParseDirection(s string) (Direction, error) { return parseName("direction", directionNames, s) }

// ParseLayer accepts a layer name in any case.
func ParseLayer(s string) (Layer, error) { return parseName("layer", layerNames, s) }

// ParseCategory accepts a category name in any case.
func ParseCategory(s string) (Category, error) { return parseName("category", categoryNames, s) }

// FrameEvent holds the bytes that crossed the transport. Data is cut at
// MaxFrameCapture; Size always has the full length.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent is a command the host sent or a frame it decoded.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	Opcode    *wire.Opcode    `cbor:"2,keyasint,omitempty"` // commands
	Marker    *wire.Marker    `cbor:"3,keyasint,omitempty"` // responses
	ErrorCode *wire.ErrorCode `cbor:"4,keyasint,omitempty"` // ack errors

	// RoundTrip runs from the command write to its response.
	RoundTrip *time.Duration `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent is a transition of a link, session or ownership check.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData is a failure seen at any layer. Code carries the
// controller's error byte when there is one.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`
	Context string `cbor:"4,keyasint,omitempty"` // the operation in progress
}
