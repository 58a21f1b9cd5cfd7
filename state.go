package relaunch

// State is a step of the relaunch protocol.
type State int

const (
	// StateNotStarted is the initial state.
	StateNotStarted State = iota

	// StateEntryCaptured means the entry method has been recorded.
	StateEntryCaptured

	// StateRelaunching means the launcher is running the application.
	StateRelaunching

	// StateDraining means the relauncher waits for non-daemon threads.
	StateDraining

	// StateTerminated means the process exit was requested.
	StateTerminated

	// StateAlreadyIsolated means Launch found the process already isolated
	// and did nothing.
	StateAlreadyIsolated

	// StateFailed means a fatal error ended the protocol.
	StateFailed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateEntryCaptured:
		return "entry_captured"
	case StateRelaunching:
		return "relaunching"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	case StateAlreadyIsolated:
		return "already_isolated"
	case StateFailed:
		return "failed"
	default:
		return unknownStr
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateAlreadyIsolated || s == StateFailed
}

const unknownStr = "unknown"
