package relaunch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrEntryResolution, "relaunch: entry routine could not be resolved"},
		{ErrMissingEntry, "relaunch: no entry method captured"},
		{ErrIsolatedLaunch, "relaunch: isolated launch failed"},
		{ErrDrainTimeout, "relaunch: drain timed out"},
		{ErrConfigInvalid, "relaunch: invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestErrorIdentity(t *testing.T) {
	all := []error{ErrEntryResolution, ErrMissingEntry, ErrIsolatedLaunch, ErrDrainTimeout, ErrConfigInvalid}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}

func TestError(t *testing.T) {
	cause := fmt.Errorf("%w: boom", ErrIsolatedLaunch)
	err := &Error{State: StateRelaunching, Err: cause}

	assert.Equal(t, "relaunch: failed while relaunching: relaunch: isolated launch failed: boom", err.Error())
	assert.ErrorIs(t, err, ErrIsolatedLaunch)

	var target *Error
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, StateRelaunching, target.State)
}
