package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

func TestSubmit_ReturnsLastToken(t *testing.T) {
	exec := &fakeExecutor{outputs: []string{"Submitted batch job 4242\n"}}
	c := NewClient(exec, DefaultClientConfig(), nil)

	id, err := c.Submit(context.Background(), SubmitRequest{
		ScriptPath: "/data/out/demux.sh",
		Flags:      []string{"--qos=high"},
		WorkingDir: "/data/out",
	})
	require.NoError(t, err)
	assert.Equal(t, "4242", id)
	require.Len(t, exec.commands, 1)
	assert.Equal(t, "cd /data/out; sbatch --qos=high /data/out/demux.sh", exec.commands[0])
}

func TestSubmit_EmptyOutput(t *testing.T) {
	exec := &fakeExecutor{outputs: []string{"  \n"}}
	c := NewClient(exec, DefaultClientConfig(), nil)

	_, err := c.Submit(context.Background(), SubmitRequest{ScriptPath: "job.sh"})
	var execErr *errs.ExecFailedError
	require.True(t, errors.As(err, &execErr))
}

func TestSubmit_NotRetried(t *testing.T) {
	exec := &fakeExecutor{errors: []error{&errs.ExecFailedError{Command: "sbatch", ExitCode: 1}}}
	clock := &fakeClock{}
	c := NewClient(exec, ClientConfig{QueryRetries: 3, Clock: clock}, nil)

	_, err := c.Submit(context.Background(), SubmitRequest{ScriptPath: "job.sh"})
	require.Error(t, err)
	assert.Len(t, exec.commands, 1)
	assert.Empty(t, clock.slept)
}

func TestBuildSubmitCommand_QuotesArguments(t *testing.T) {
	cmd := BuildSubmitCommand(SubmitRequest{
		ScriptPath: "/data/my run/job.sh",
		Args:       []string{"it's"},
	})
	assert.Equal(t, `sbatch '/data/my run/job.sh' 'it'\''s'`, cmd)
}

func TestQuery_ParsesSqueue(t *testing.T) {
	out := "JOBID,STATE\n123_1,COMPLETED\n123_2,RUNNING\n124,CANCELLED by 501\n\n"
	exec := &fakeExecutor{outputs: []string{out}}
	c := NewClient(exec, DefaultClientConfig(), nil)

	states, err := c.Query(context.Background(), []string{"123", "124"})
	require.NoError(t, err)
	assert.Equal(t, map[string]State{
		"123_1": StateCompleted,
		"123_2": StateRunning,
		"124":   StateCancelled,
	}, states)
	assert.Equal(t, "squeue -t all -j 123,124 -o '%i,%T'", exec.commands[0])
}

func TestQuery_RetriesThenRaises(t *testing.T) {
	fail := &errs.ExecFailedError{Command: "squeue", ExitCode: 1, Stderr: "slurm_load_jobs error: Socket timed out"}
	exec := &fakeExecutor{errors: []error{fail, fail, fail, fail}}
	clock := &fakeClock{}
	c := NewClient(exec, ClientConfig{QueryRetries: 3, QueryRetryDelay: 10 * time.Second, Clock: clock}, nil)

	_, err := c.Query(context.Background(), []string{"1"})
	require.Error(t, err)
	assert.Len(t, exec.commands, 4)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, clock.slept)

	var execErr *errs.ExecFailedError
	assert.True(t, errors.As(err, &execErr))
}

func TestQuery_RecoversAfterTransientFailures(t *testing.T) {
	fail := &errs.ExecFailedError{Command: "squeue", ExitCode: 1}
	exec := &fakeExecutor{
		errors:  []error{fail, fail, nil},
		outputs: []string{"", "", "JOBID,STATE\n1,COMPLETED\n"},
	}
	c := NewClient(exec, ClientConfig{QueryRetries: 3, Clock: &fakeClock{}}, nil)

	states, err := c.Query(context.Background(), []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]State{"1": StateCompleted}, states)
	assert.Len(t, exec.commands, 3)
}

func TestQuery_RequiresIDs(t *testing.T) {
	c := NewClient(&fakeExecutor{}, DefaultClientConfig(), nil)
	_, err := c.Query(context.Background(), nil)
	var cfgErr *errs.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
