// Package runner executes shell commands synchronously on the submit host.
//
// It is the only package that spawns processes. The scheduler and job
// packages reach the shell through the scheduler.Executor interface, which
// *Runner satisfies.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"slices"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/logging"
)

// Status values reported through events.StatusFunc for local processes.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
)

// DefaultShell is the interpreter used for every command.
const DefaultShell = "bash"

// Options tune a single Run invocation.
type Options struct {
	// AllowedExitCodes lists non-zero exit codes that count as success.
	AllowedExitCodes []int
	// OnStatus is notified with the child's pid at start and at exit.
	OnStatus events.StatusFunc
	// Dir is the working directory for the child. Empty inherits ours.
	Dir string
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs commands through a shell.
type Runner struct {
	Shell  string
	logger *logging.Logger
}

// New creates a Runner using bash.
func New(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{Shell: DefaultShell, logger: logger.Named("runner")}
}

// Run executes command via "<shell> -c" and blocks until it exits.
//
// A non-zero exit code not listed in opts.AllowedExitCodes yields an
// *errs.ExecFailedError carrying the captured output. If ctx is cancelled
// the child's whole process group is killed and the returned
// ExecFailedError has exit code -1 and wraps ctx.Err().
func (r *Runner) Run(ctx context.Context, command string, opts Options) (*Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = opts.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().Str("command", command).Str("dir", opts.Dir).Msg("Executing")

	if err := cmd.Start(); err != nil {
		notify(opts.OnStatus, "", StatusError)
		return nil, &errs.ExecFailedError{Command: command, ExitCode: -1, Err: err}
	}

	pid := strconv.Itoa(cmd.Process.Pid)
	notify(opts.OnStatus, pid, StatusRunning)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		// Negative pid targets the process group created by Setpgid.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			r.logger.Warn().Err(err).Str("pid", pid).Msg("Failed to kill process group")
		}
		<-done
		notify(opts.OnStatus, pid, StatusError)
		return nil, &errs.ExecFailedError{
			Command:  command,
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      ctx.Err(),
		}
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, waitErr),
	}

	if waitErr != nil && res.ExitCode == -1 {
		notify(opts.OnStatus, pid, StatusError)
		return nil, &errs.ExecFailedError{
			Command:  command,
			ExitCode: -1,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Err:      waitErr,
		}
	}

	if res.ExitCode != 0 && !slices.Contains(opts.AllowedExitCodes, res.ExitCode) {
		notify(opts.OnStatus, pid, StatusError)
		r.logger.Debug().Str("command", command).Int("exit_code", res.ExitCode).Msg("Command failed")
		return nil, &errs.ExecFailedError{
			Command:  command,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
		}
	}

	notify(opts.OnStatus, pid, StatusCompleted)
	return res, nil
}

// Execute satisfies scheduler.Executor: it runs command with no allowed
// non-zero exit codes and returns stdout.
func (r *Runner) Execute(ctx context.Context, command string, onStatus events.StatusFunc) (string, error) {
	res, err := r.Run(ctx, command, Options{OnStatus: onStatus})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func notify(fn events.StatusFunc, id, status string) {
	if fn != nil {
		fn(id, status)
	}
}
