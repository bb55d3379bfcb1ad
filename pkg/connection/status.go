package connection

import "time"

// Status is the user-visible connection status.
type Status uint8

const (
	// StatusIdle indicates nothing is connected or in progress.
	StatusIdle Status = iota

	// StatusScanning indicates a user-initiated scan is running.
	StatusScanning

	// StatusConnecting indicates an explicit connect is in progress.
	StatusConnecting

	// StatusReconnecting indicates the reconnect window is open.
	StatusReconnecting

	// StatusConnected indicates a controller is connected.
	StatusConnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusScanning:
		return "SCANNING"
	case StatusConnecting:
		return "CONNECTING"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Ownership is the outcome of the claim or verify step of a connect.
type Ownership uint8

const (
	// OwnershipUnknown means the step did not complete.
	OwnershipUnknown Ownership = iota

	// OwnershipClaimed means this connect claimed an unowned controller.
	OwnershipClaimed

	// OwnershipVerified means the stored owner token was accepted.
	OwnershipVerified

	// OwnershipTrusted means the check was skipped in trusted mode.
	OwnershipTrusted

	// OwnershipDenied means the controller belongs to someone else.
	OwnershipDenied
)

// String returns the ownership name.
func (o Ownership) String() string {
	switch o {
	case OwnershipUnknown:
		return "UNKNOWN"
	case OwnershipClaimed:
		return "CLAIMED"
	case OwnershipVerified:
		return "VERIFIED"
	case OwnershipTrusted:
		return "TRUSTED"
	case OwnershipDenied:
		return "DENIED"
	default:
		return "INVALID"
	}
}

// Permits reports whether a configuration session may be opened.
func (o Ownership) Permits() bool {
	return o == OwnershipClaimed || o == OwnershipVerified || o == OwnershipTrusted
}

// Trigger names what started a reconnect window.
type Trigger uint8

const (
	TriggerAppLaunch Trigger = iota
	TriggerForeground
	TriggerDiscovered
	TriggerLinkLost
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerAppLaunch:
		return "app_launch"
	case TriggerForeground:
		return "foreground"
	case TriggerDiscovered:
		return "discovered"
	case TriggerLinkLost:
		return "link_lost"
	default:
		return "unknown"
	}
}

// Path names how a reconnect reached the controller.
type Path uint8

const (
	PathNone Path = iota
	PathDirect
	PathScan
)

// String returns the path name.
func (p Path) String() string {
	switch p {
	case PathDirect:
		return "direct"
	case PathScan:
		return "scan"
	default:
		return "none"
	}
}

// ReconnectOutcome reports how a reconnect window ended. Failures are only
// ever reported this way, never returned.
type ReconnectOutcome struct {
	Trigger  Trigger
	DeviceID string
	Path     Path
	Attempts int
	Elapsed  time.Duration

	// Connected is true if a link was established, possibly after the
	// window expired.
	Connected bool

	// Expired is true if the window closed before the outcome was known.
	Expired bool

	// Err is the last failure seen, if any.
	Err error
}
