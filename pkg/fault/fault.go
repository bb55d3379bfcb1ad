// Package fault classifies protocol and transport failures and renders them
// for the user.
//
// Every failure that leaves the session or connection layers is a *Fault.
// Protocol faults carry the ErrorEnvelope the peripheral sent; transport
// faults (timeouts, disconnects, undecodable frames) are synthesized locally.
// Classification never fails: unknown input is treated as a blocking error.
package fault

import (
	"errors"
	"fmt"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// Kind is the failure taxonomy.
type Kind uint8

const (
	// KindProtocol is an ack-error reported by the peripheral.
	KindProtocol Kind = iota

	// KindTimeout is a command that got no response in time.
	KindTimeout

	// KindDisconnected is a command aborted by link loss.
	KindDisconnected

	// KindMalformedFrame is a response of a known type with a bad layout.
	KindMalformedFrame

	// KindUnknownFrame is a response with an unrecognized discriminant.
	KindUnknownFrame

	// KindValidation is a write rejected locally before reaching the wire.
	KindValidation

	// KindTransport is a write the radio layer refused.
	KindTransport
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "PROTOCOL"
	case KindTimeout:
		return "TIMEOUT"
	case KindDisconnected:
		return "DISCONNECTED"
	case KindMalformedFrame:
		return "MALFORMED_FRAME"
	case KindUnknownFrame:
		return "UNKNOWN_FRAME"
	case KindValidation:
		return "VALIDATION"
	case KindTransport:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors for the local fault kinds. A *Fault of the matching kind
// satisfies errors.Is against these.
var (
	ErrTimeout      = errors.New("command timed out")
	ErrDisconnected = errors.New("peripheral disconnected")
	ErrValidation   = errors.New("rejected by local validation")
)

// Fault is a classified failure of a single operation.
type Fault struct {
	Kind Kind

	// Op names the operation that failed, e.g. "enter" or "update brightness".
	Op string

	// DeviceID identifies the peripheral, if known.
	DeviceID string

	// Envelope is set for KindProtocol.
	Envelope *wire.ErrorEnvelope

	// Err is the underlying cause, if any.
	Err error
}

// New creates a local fault of the given kind.
func New(kind Kind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}

// FromEnvelope creates a protocol fault.
func FromEnvelope(op string, env wire.ErrorEnvelope) *Fault {
	return &Fault{Kind: KindProtocol, Op: op, Envelope: &env}
}

// FromError normalizes an error from a lower layer into a *Fault. Existing
// faults are returned unchanged; nil stays nil.
func FromError(op string, err error) *Fault {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	var env wire.ErrorEnvelope
	if errors.As(err, &env) {
		return FromEnvelope(op, env)
	}

	switch {
	case errors.Is(err, wire.ErrMalformedFrame):
		return New(KindMalformedFrame, op, err)
	case errors.Is(err, wire.ErrUnknownFrame):
		return New(KindUnknownFrame, op, err)
	case errors.Is(err, ErrTimeout):
		return New(KindTimeout, op, err)
	case errors.Is(err, ErrDisconnected):
		return New(KindDisconnected, op, err)
	case errors.Is(err, ErrValidation):
		return New(KindValidation, op, err)
	default:
		return New(KindTransport, op, err)
	}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	prefix := f.Op
	if f.DeviceID != "" {
		prefix = fmt.Sprintf("%s %s", f.DeviceID, f.Op)
	}

	var detail string
	switch {
	case f.Envelope != nil:
		detail = f.Envelope.Error()
	case f.Err != nil:
		detail = f.Err.Error()
	default:
		detail = f.Kind.String()
	}

	if prefix == "" {
		return detail
	}
	return fmt.Sprintf("%s: %s", prefix, detail)
}

// Unwrap returns the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is matches the sentinel errors of the local kinds.
func (f *Fault) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return f.Kind == KindTimeout
	case ErrDisconnected:
		return f.Kind == KindDisconnected
	case ErrValidation:
		return f.Kind == KindValidation
	}
	return false
}

// Code returns the protocol error code, or wire.ErrorUnknown for local faults.
func (f *Fault) Code() wire.ErrorCode {
	if f.Envelope == nil {
		return wire.ErrorUnknown
	}
	return f.Envelope.Code
}

// HasCode reports whether err is a protocol fault with the given code.
func HasCode(err error, code wire.ErrorCode) bool {
	var f *Fault
	if !errors.As(err, &f) || f.Envelope == nil {
		return false
	}
	return f.Envelope.Code == code
}

// Classification returns the severity and recoverability of the fault.
func (f *Fault) Classification() Classification {
	if f.Envelope != nil {
		return Classify(*f.Envelope)
	}
	switch f.Kind {
	case KindValidation:
		return Classification{Severity: SeverityWarning}
	default:
		return Classification{Severity: SeverityError}
	}
}

// Severity returns the fault's severity.
func (f *Fault) Severity() Severity {
	return f.Classification().Severity
}

// UserMessage renders the fault for display.
func (f *Fault) UserMessage() string {
	if f.Envelope != nil {
		return FormatForUser(*f.Envelope)
	}
	switch f.Kind {
	case KindTimeout:
		return "The controller did not respond in time."
	case KindDisconnected:
		return "The controller disconnected."
	case KindMalformedFrame, KindUnknownFrame:
		return "The controller sent a response that could not be read."
	case KindValidation:
		if f.Err != nil && !errors.Is(f.Err, ErrValidation) {
			return f.Err.Error()
		}
		return "That setting is not allowed."
	default:
		return "Could not reach the controller."
	}
}
