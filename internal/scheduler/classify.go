package scheduler

import (
	"fmt"
	"strings"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

// Classify decides whether jobID succeeded given the final states from Wait.
//
// A plain job succeeds only when its own state is COMPLETED. An array job
// succeeds only when every element is COMPLETED. Anything else yields an
// *errs.JobFailedError naming the offending states.
func Classify(jobID string, states map[string]State) error {
	if s, ok := states[jobID]; ok {
		if s.IsSuccess() {
			return nil
		}
		return &errs.JobFailedError{
			JobID: jobID,
			Msg:   fmt.Sprintf("job %s exited with state %s", jobID, s),
		}
	}

	tally := Tally(jobID, states)
	if len(tally) == 1 && tally[StateCompleted] > 0 {
		return nil
	}

	failed := make(map[string]int)
	for s, n := range tally {
		if !s.IsSuccess() {
			failed[string(s)] = n
		}
	}
	jobErr := &errs.JobFailedError{JobID: jobID, States: failed}
	if len(failed) == 0 {
		jobErr.Msg = fmt.Sprintf("job %s exited with no array elements reported", jobID)
		return jobErr
	}
	counted := make([]string, 0, len(failed))
	for _, st := range jobErr.FailedStates() {
		counted = append(counted, fmt.Sprintf("%s (%d)", st, failed[st]))
	}
	jobErr.Msg = fmt.Sprintf("job %s exited with jobs in the following states: %s",
		jobID, strings.Join(counted, ", "))
	return jobErr
}

// Tally counts array elements of jobID per state.
func Tally(jobID string, states map[string]State) map[State]int {
	prefix := jobID + "_"
	tally := make(map[State]int)
	for key, s := range states {
		if strings.HasPrefix(key, prefix) {
			tally[s]++
		}
	}
	return tally
}
