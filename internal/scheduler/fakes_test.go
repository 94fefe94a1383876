package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/biocore-hpc/seqjob/internal/events"
)

// fakeExecutor replays canned outputs in order and records every command.
type fakeExecutor struct {
	mu       sync.Mutex
	outputs  []string
	errors   []error
	commands []string
}

func (f *fakeExecutor) Execute(ctx context.Context, command string, onStatus events.StatusFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.commands)
	f.commands = append(f.commands, command)
	var out string
	var err error
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	if i < len(f.errors) {
		err = f.errors[i]
	}
	return out, err
}

// fakeQuerier returns one scripted response per call, repeating the last.
type fakeQuerier struct {
	responses []map[string]State
	calls     int
}

func (f *fakeQuerier) Query(ctx context.Context, ids []string) (map[string]State, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return f.responses[i], nil
}

// fakeClock records requested sleeps without waiting.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return ctx.Err()
}
