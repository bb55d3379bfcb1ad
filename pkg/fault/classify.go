package fault

import "github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"

// Severity determines how the UI presents a fault.
type Severity uint8

const (
	// SeverityError blocks the current operation.
	SeverityError Severity = iota

	// SeverityWarning is dismissible with context.
	SeverityWarning

	// SeverityInfo is ambient status, not a failure.
	SeverityInfo
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// Classification is the outcome of classifying an error envelope.
type Classification struct {
	Severity Severity

	// Recoverable means the session handles the fault itself.
	Recoverable bool
}

// Classify maps a protocol error to its severity and recoverability.
//
// not_in_config_mode is recoverable by re-entering config mode.
// already_in_config_mode is informational. Ownership errors are terminal.
func Classify(env wire.ErrorEnvelope) Classification {
	switch env.Code {
	case wire.ErrorNotInConfigMode:
		return Classification{Severity: SeverityWarning, Recoverable: true}
	case wire.ErrorAlreadyInConfigMode:
		return Classification{Severity: SeverityInfo}
	default:
		return Classification{Severity: SeverityError}
	}
}

// IsOwnershipConflict reports whether the code must be shown to the user
// verbatim as an ownership problem.
func IsOwnershipConflict(code wire.ErrorCode) bool {
	return code == wire.ErrorNotOwner || code == wire.ErrorAlreadyClaimed
}

var defaultMessages = map[wire.ErrorCode]string{
	wire.ErrorInvalidCommand:      "The controller did not recognize the command.",
	wire.ErrorInvalidParameter:    "The controller does not support that setting.",
	wire.ErrorOutOfRange:          "The value is outside the allowed range.",
	wire.ErrorNotInConfigMode:     "The controller is not in configuration mode.",
	wire.ErrorAlreadyInConfigMode: "The controller is already in configuration mode.",
	wire.ErrorFlashWriteFailed:    "The controller could not save the configuration.",
	wire.ErrorValidationFailed:    "The controller rejected the configuration.",
	wire.ErrorNotOwner:            "This controller belongs to another user.",
	wire.ErrorAlreadyClaimed:      "This controller has already been claimed by another user.",
}

// FormatForUser renders an envelope for display. The peripheral's own message
// wins; otherwise a generic message for the code is used.
func FormatForUser(env wire.ErrorEnvelope) string {
	if env.Message != "" {
		return env.Message
	}
	if msg, ok := defaultMessages[env.Code]; ok {
		return msg
	}
	return "The controller reported an unknown error."
}
