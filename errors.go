package relaunch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the relaunch package.
var (
	// ErrEntryResolution indicates no entry routine could be resolved.
	ErrEntryResolution = errors.New("relaunch: entry routine could not be resolved")

	// ErrMissingEntry indicates the re-entry routine ran without a captured
	// entry, i.e. outside of Launch.
	ErrMissingEntry = errors.New("relaunch: no entry method captured")

	// ErrIsolatedLaunch indicates the launcher failed to build or run the
	// isolated application.
	ErrIsolatedLaunch = errors.New("relaunch: isolated launch failed")

	// ErrDrainTimeout indicates non-daemon threads were still running when
	// Config.DrainTimeout elapsed.
	ErrDrainTimeout = errors.New("relaunch: drain timed out")

	// ErrConfigInvalid indicates the provided configuration failed validation.
	ErrConfigInvalid = errors.New("relaunch: invalid configuration")
)

// Error is the single failure type surfaced by Launch. It records the state
// the relauncher was in when the fault occurred and wraps the cause, so
// errors.Is and errors.As reach the original error.
type Error struct {
	// State is the state in which the failure happened.
	State State
	// Err is the cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relaunch: failed while %s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
