package relaunch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateNotStarted, "not_started"},
		{StateEntryCaptured, "entry_captured"},
		{StateRelaunching, "relaunching"},
		{StateDraining, "draining"},
		{StateTerminated, "terminated"},
		{StateAlreadyIsolated, "already_isolated"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateTerminated, StateAlreadyIsolated, StateFailed} {
		assert.True(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StateNotStarted, StateEntryCaptured, StateRelaunching, StateDraining} {
		assert.False(t, s.Terminal(), s.String())
	}
}
