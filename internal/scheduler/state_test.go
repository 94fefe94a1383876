package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_Predicates(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
		success  bool
		known    bool
	}{
		{StateCompleted, true, true, true},
		{StateFailed, true, false, true},
		{StateOutOfMemory, true, false, true},
		{StateTimeout, true, false, true},
		{StateRunning, false, false, true},
		{StatePending, false, false, true},
		{StateRequeueHold, false, false, true},
		{State("LAUNCH_FAILED"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
			assert.Equal(t, tt.success, tt.state.IsSuccess())
			assert.Equal(t, tt.known, tt.state.IsKnown())
		})
	}
}

func TestParseState(t *testing.T) {
	assert.Equal(t, StateCancelled, ParseState("CANCELLED by 1234"))
	assert.Equal(t, StateCompleted, ParseState(" completed\n"))
	assert.Equal(t, StateFailed, ParseState("FAILED+"))
}
