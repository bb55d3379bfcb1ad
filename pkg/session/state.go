package session

// State is the configuration-mode state of a session.
type State uint8

const (
	// StateInactive means the controller runs its committed configuration.
	StateInactive State = iota

	// StateEntering means an EnterConfig command is outstanding.
	StateEntering

	// StateActive means writes are staged on the controller.
	StateActive

	// StateCommitting means a CommitConfig command is outstanding.
	StateCommitting

	// StateExiting means an ExitConfig command is outstanding.
	StateExiting

	// StateFaulted means entering config mode failed. Enter may be retried.
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateEntering:
		return "entering"
	case StateActive:
		return "active"
	case StateCommitting:
		return "committing"
	case StateExiting:
		return "exiting"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// inConfigMode reports whether the controller accepts writes in this state.
func (s State) inConfigMode() bool {
	return s == StateActive || s == StateCommitting
}
