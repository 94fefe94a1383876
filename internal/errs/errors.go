// Package errs defines the error taxonomy shared by the submission engine.
//
// Every error type in this package matches ErrPipeline with errors.Is, so
// callers that only care whether a failure came from the engine can test for
// the base kind, while callers that need details use errors.As.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPipeline is the base kind for all engine errors.
var ErrPipeline = errors.New("pipeline error")

// ConfigurationError reports invalid constructor arguments, missing
// directories or files, and unresolved executables. It is never retried.
type ConfigurationError struct {
	Msg string
	Err error
}

// Configf builds a ConfigurationError from a format string.
func Configf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrPipeline }

// ExecFailedError reports a shell invocation that exited with an
// unacceptable code, including scheduler query transport failures that
// survived every retry.
type ExecFailedError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	// Err is the underlying cause when the process could not be started
	// or was interrupted.
	Err error
}

func (e *ExecFailedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "execute of command %q failed with exit code %d", e.Command, e.ExitCode)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&sb, "\nstderr: %s", s)
	}
	return sb.String()
}

func (e *ExecFailedError) Unwrap() error { return e.Err }

func (e *ExecFailedError) Is(target error) bool { return target == ErrPipeline }

// JobFailedError reports a submitted scheduler job that resolved to a
// non-success terminal state, or a submission that was forced to fail.
type JobFailedError struct {
	JobID string
	Msg   string
	// States counts array elements per non-success state. Nil for
	// single jobs and forced failures.
	States map[string]int
	// FailedSlots lists array slots (1-based) that never wrote their
	// completion marker.
	FailedSlots []int
	// LogLines holds excerpts scraped from the job's log directory.
	LogLines []string
}

func (e *JobFailedError) Error() string {
	if len(e.LogLines) == 0 {
		return e.Msg
	}
	return e.Msg + "\n" + strings.Join(e.LogLines, "\n")
}

func (e *JobFailedError) Is(target error) bool { return target == ErrPipeline }

// FailedStates returns the distinct non-success states in sorted order.
func (e *JobFailedError) FailedStates() []string {
	out := make([]string, 0, len(e.States))
	for s := range e.States {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
