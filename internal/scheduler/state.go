package scheduler

import "strings"

// State is a SLURM job state as reported by squeue or slurmrestd.
type State string

// Terminal success.
const (
	StateCompleted State = "COMPLETED"
)

// Terminal failure.
const (
	StateBootFail    State = "BOOT_FAIL"
	StateCancelled   State = "CANCELLED"
	StateDeadline    State = "DEADLINE"
	StateFailed      State = "FAILED"
	StateNodeFail    State = "NODE_FAIL"
	StateOutOfMemory State = "OUT_OF_MEMORY"
	StatePreempted   State = "PREEMPTED"
	StateRevoked     State = "REVOKED"
	StateTimeout     State = "TIMEOUT"
)

// Non-terminal.
const (
	StateCompleting  State = "COMPLETING"
	StateConfiguring State = "CONFIGURING"
	StatePending     State = "PENDING"
	StateRequeued    State = "REQUEUED"
	StateRequeueFed  State = "REQUEUE_FED"
	StateRequeueHold State = "REQUEUE_HOLD"
	StateResizing    State = "RESIZING"
	StateResvDelHold State = "RESV_DEL_HOLD"
	StateRunning     State = "RUNNING"
	StateSignaling   State = "SIGNALING"
	StateSpecialExit State = "SPECIAL_EXIT"
	StateStageOut    State = "STAGE_OUT"
	StateStopped     State = "STOPPED"
	StateSuspended   State = "SUSPENDED"
)

var terminalFailure = map[State]struct{}{
	StateBootFail:    {},
	StateCancelled:   {},
	StateDeadline:    {},
	StateFailed:      {},
	StateNodeFail:    {},
	StateOutOfMemory: {},
	StatePreempted:   {},
	StateRevoked:     {},
	StateTimeout:     {},
}

var nonTerminal = map[State]struct{}{
	StateCompleting:  {},
	StateConfiguring: {},
	StatePending:     {},
	StateRequeued:    {},
	StateRequeueFed:  {},
	StateRequeueHold: {},
	StateResizing:    {},
	StateResvDelHold: {},
	StateRunning:     {},
	StateSignaling:   {},
	StateSpecialExit: {},
	StateStageOut:    {},
	StateStopped:     {},
	StateSuspended:   {},
}

// ParseState normalizes a raw scheduler token. squeue may append a reason
// ("CANCELLED by 1234") and slurmrestd uses upper case without decoration.
func ParseState(raw string) State {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, " \t+"); i >= 0 {
		s = s[:i]
	}
	return State(strings.ToUpper(s))
}

// IsSuccess reports whether s is the single successful terminal state.
func (s State) IsSuccess() bool {
	return s == StateCompleted
}

// IsFailure reports whether s is a terminal failure state.
func (s State) IsFailure() bool {
	_, ok := terminalFailure[s]
	return ok
}

// IsTerminal reports whether s will not change again.
func (s State) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// IsKnown reports whether s belongs to the closed state vocabulary.
func (s State) IsKnown() bool {
	if s.IsTerminal() {
		return true
	}
	_, ok := nonTerminal[s]
	return ok
}

func (s State) String() string { return string(s) }
