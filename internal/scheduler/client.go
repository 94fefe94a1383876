// Package scheduler talks to SLURM: it submits batch scripts, queries job
// states, waits for jobs to reach terminal states, and classifies results.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/logging"
	"github.com/biocore-hpc/seqjob/internal/retry"
	"github.com/biocore-hpc/seqjob/internal/shell"
)

// Executor runs a shell command and returns its stdout. Failures must be
// reported as *errs.ExecFailedError so they can be retried.
type Executor interface {
	Execute(ctx context.Context, command string, onStatus events.StatusFunc) (string, error)
}

// Querier returns the current state of every job and array element that
// the scheduler reports for ids. Array elements are keyed "{id}_{index}".
type Querier interface {
	Query(ctx context.Context, ids []string) (map[string]State, error)
}

// SubmitRequest describes one sbatch invocation.
type SubmitRequest struct {
	ScriptPath string
	Flags      []string
	Args       []string
	// WorkingDir, when set, is entered before sbatch runs.
	WorkingDir string
	OnStatus   events.StatusFunc
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// QueryRetries is the number of additional squeue attempts after a
	// transport failure.
	QueryRetries int
	// QueryRetryDelay is the fixed pause between squeue attempts.
	QueryRetryDelay time.Duration
	// Clock provides the retry sleep. Nil means the wall clock.
	Clock Clock
}

// DefaultClientConfig returns the standard squeue retry policy.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		QueryRetries:    constants.QueryRetries,
		QueryRetryDelay: constants.QueryRetryDelay,
	}
}

// Client submits and queries jobs through sbatch and squeue.
type Client struct {
	exec   Executor
	config ClientConfig
	logger *logging.Logger
}

// NewClient creates a Client that runs scheduler commands through exec.
func NewClient(exec Executor, config ClientConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.QueryRetries < 0 {
		config.QueryRetries = 0
	}
	return &Client{
		exec:   exec,
		config: config,
		logger: logger.Named("scheduler"),
	}
}

// Submit runs sbatch and returns the scheduler-issued job id, taken as the
// last whitespace-delimited token of sbatch's stdout.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.ScriptPath == "" {
		return "", errs.Configf("submit: script path is required")
	}

	command := BuildSubmitCommand(req)
	c.logger.Debug().Str("command", command).Msg("Submitting")

	out, err := c.exec.Execute(ctx, command, req.OnStatus)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", &errs.ExecFailedError{
			Command:  command,
			ExitCode: 0,
			Stdout:   out,
			Err:      fmt.Errorf("sbatch printed no job id"),
		}
	}
	id := fields[len(fields)-1]
	c.logger.Info().Str("job_id", id).Str("script", req.ScriptPath).Msg("Submitted job")
	return id, nil
}

// BuildSubmitCommand renders "[cd <dir>;] sbatch [flags] <script> [args]".
func BuildSubmitCommand(req SubmitRequest) string {
	var sb strings.Builder
	if req.WorkingDir != "" {
		sb.WriteString("cd ")
		sb.WriteString(shell.Quote(req.WorkingDir))
		sb.WriteString("; ")
	}
	sb.WriteString("sbatch")
	for _, f := range req.Flags {
		sb.WriteString(" ")
		sb.WriteString(shell.Quote(f))
	}
	sb.WriteString(" ")
	sb.WriteString(shell.Quote(req.ScriptPath))
	for _, a := range req.Args {
		sb.WriteString(" ")
		sb.WriteString(shell.Quote(a))
	}
	return sb.String()
}

// BuildQueryCommand renders the squeue invocation for ids.
func BuildQueryCommand(ids []string) string {
	return fmt.Sprintf("squeue -t all -j %s -o '%%i,%%T'", strings.Join(ids, ","))
}

// Query runs squeue for ids, retrying transport failures with a fixed delay.
func (c *Client) Query(ctx context.Context, ids []string) (map[string]State, error) {
	if len(ids) == 0 {
		return nil, errs.Configf("query: at least one job id is required")
	}
	command := BuildQueryCommand(ids)

	var out string
	policy := retry.Config{
		MaxRetries: c.config.QueryRetries,
		Delay:      c.config.QueryRetryDelay,
		Sleep:      c.config.Clock.Sleep,
		OnRetry: func(attempt int, err error) {
			c.logger.Warn().Err(err).Int("attempt", attempt).
				Dur("delay", c.config.QueryRetryDelay).Msg("squeue failed, retrying")
		},
	}
	err := retry.Do(ctx, policy, func() error {
		var execErr error
		out, execErr = c.exec.Execute(ctx, command, nil)
		return execErr
	})
	if err != nil {
		return nil, err
	}

	return c.parseQueue(out), nil
}

// parseQueue turns "%i,%T" rows into a state map. The first line is the
// squeue header.
func (c *Client) parseQueue(out string) map[string]State {
	states := make(map[string]State)
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}
		id, raw, ok := strings.Cut(line, ",")
		if !ok {
			c.logger.Warn().Str("line", line).Msg("Ignoring malformed squeue row")
			continue
		}
		states[strings.TrimSpace(id)] = c.normalize(raw)
	}
	return states
}

func (c *Client) normalize(raw string) State {
	s := ParseState(raw)
	if !s.IsKnown() {
		c.logger.Warn().Str("state", raw).Msg("Unknown scheduler state, treating as non-terminal")
	}
	return s
}
