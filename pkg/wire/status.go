package wire

import (
	"fmt"
	"time"
)

// ErrorCode is the closed set of protocol error codes reported in ack-error
// frames. Codes the host does not know decode to ErrorUnknown.
type ErrorCode uint8

const (
	// ErrorInvalidCommand indicates the opcode was not recognized.
	ErrorInvalidCommand ErrorCode = 0x01

	// ErrorInvalidParameter indicates the parameter id was not recognized.
	ErrorInvalidParameter ErrorCode = 0x02

	// ErrorOutOfRange indicates a value outside the parameter range.
	ErrorOutOfRange ErrorCode = 0x03

	// ErrorNotInConfigMode indicates the command requires config mode.
	ErrorNotInConfigMode ErrorCode = 0x04

	// ErrorAlreadyInConfigMode indicates config mode was already active.
	ErrorAlreadyInConfigMode ErrorCode = 0x05

	// ErrorFlashWriteFailed indicates the commit could not be persisted.
	ErrorFlashWriteFailed ErrorCode = 0x06

	// ErrorValidationFailed indicates the staged configuration was rejected.
	ErrorValidationFailed ErrorCode = 0x07

	// ErrorNotOwner indicates the caller does not own the device.
	ErrorNotOwner ErrorCode = 0x08

	// ErrorAlreadyClaimed indicates the device already has an owner.
	ErrorAlreadyClaimed ErrorCode = 0x09

	// ErrorUnknown stands in for every code not listed above.
	ErrorUnknown ErrorCode = 0xFF
)

// ErrorCodeFromByte maps a raw code byte to an ErrorCode.
func ErrorCodeFromByte(b byte) ErrorCode {
	code := ErrorCode(b)
	if code.IsKnown() {
		return code
	}
	return ErrorUnknown
}

// IsKnown returns true for the enumerated codes (excluding ErrorUnknown).
func (c ErrorCode) IsKnown() bool {
	return c >= ErrorInvalidCommand && c <= ErrorAlreadyClaimed
}

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorInvalidCommand:
		return "INVALID_COMMAND"
	case ErrorInvalidParameter:
		return "INVALID_PARAMETER"
	case ErrorOutOfRange:
		return "OUT_OF_RANGE"
	case ErrorNotInConfigMode:
		return "NOT_IN_CONFIG_MODE"
	case ErrorAlreadyInConfigMode:
		return "ALREADY_IN_CONFIG_MODE"
	case ErrorFlashWriteFailed:
		return "FLASH_WRITE_FAILED"
	case ErrorValidationFailed:
		return "VALIDATION_FAILED"
	case ErrorNotOwner:
		return "NOT_OWNER"
	case ErrorAlreadyClaimed:
		return "ALREADY_CLAIMED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEnvelope is the common shape of a protocol error, whether it arrived
// as a binary ack-error frame or as a legacy text line.
type ErrorEnvelope struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
}

// NewErrorEnvelope creates an envelope stamped with the current time.
func NewErrorEnvelope(code ErrorCode, message string) ErrorEnvelope {
	return ErrorEnvelope{Code: code, Message: message, Timestamp: time.Now()}
}

// Error implements the error interface so envelopes can be wrapped.
func (e ErrorEnvelope) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
