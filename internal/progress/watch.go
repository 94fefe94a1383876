package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// WatchBar shows how many of a job's elements have reached a terminal
// state while `status --watch` polls.
type WatchBar struct {
	bar *progressbar.ProgressBar

	mu       sync.Mutex
	states   map[string]scheduler.State
	terminal int
}

// NewWatchBar creates a WatchBar on stderr.
func NewWatchBar(description string) *WatchBar {
	return NewWatchBarWithWriter(os.Stderr, description)
}

// NewWatchBarWithWriter creates a WatchBar writing to w.
func NewWatchBarWithWriter(w io.Writer, description string) *WatchBar {
	bar := progressbar.NewOptions(1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &WatchBar{
		bar:    bar,
		states: make(map[string]scheduler.State),
	}
}

// Observe is an events.StatusFunc that records one state change.
func (w *WatchBar) Observe(id, status string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := scheduler.ParseState(status)
	if prev, ok := w.states[id]; ok && prev.IsTerminal() {
		return
	}
	w.states[id] = state
	if state.IsTerminal() {
		w.terminal++
	}

	w.bar.ChangeMax(len(w.states))
	_ = w.bar.Set(w.terminal)
}

// Counts returns the number of terminal and known elements.
func (w *WatchBar) Counts() (terminal, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminal, len(w.states)
}

// Finish completes the bar.
func (w *WatchBar) Finish() {
	_ = w.bar.Finish()
}
