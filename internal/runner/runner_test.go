package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []string
	ids      []string
}

func (s *statusRecorder) record(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	s.statuses = append(s.statuses, status)
}

func TestRun_CapturesOutput(t *testing.T) {
	r := New(nil)
	rec := &statusRecorder{}

	res, err := r.Run(context.Background(), "echo hello; echo oops >&2", Options{OnStatus: rec.record})
	require.NoError(t, err)

	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{StatusRunning, StatusCompleted}, rec.statuses)
	require.Len(t, rec.ids, 2)
	assert.NotEmpty(t, rec.ids[0])
	assert.Equal(t, rec.ids[0], rec.ids[1])
}

func TestRun_NonZeroExitFails(t *testing.T) {
	r := New(nil)
	rec := &statusRecorder{}

	_, err := r.Run(context.Background(), "false", Options{OnStatus: rec.record})
	require.Error(t, err)

	var execErr *errs.ExecFailedError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Equal(t, "false", execErr.Command)
	assert.True(t, errors.Is(err, errs.ErrPipeline))
	assert.Equal(t, []string{StatusRunning, StatusError}, rec.statuses)
}

func TestRun_AllowedExitCode(t *testing.T) {
	r := New(nil)

	res, err := r.Run(context.Background(), "false", Options{AllowedExitCodes: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRun_StderrInError(t *testing.T) {
	r := New(nil)

	_, err := r.Run(context.Background(), "echo 'sbatch: error: invalid partition' >&2; exit 3", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "invalid partition")
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := New(nil)

	res, err := r.Run(context.Background(), "pwd -P", Options{Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, filepath.Base(dir))
}

func TestRun_ContextCancelKillsGroup(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, "sleep 30 & sleep 30; wait", Options{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	var execErr *errs.ExecFailedError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, -1, execErr.ExitCode)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecute_ReturnsStdout(t *testing.T) {
	r := New(nil)

	out, err := r.Execute(context.Background(), "printf 'Submitted batch job 4242\\n'", nil)
	require.NoError(t, err)
	assert.Equal(t, "Submitted batch job 4242\n", out)
}
