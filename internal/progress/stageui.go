// Package progress renders pipeline progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// StageUI draws one bar per pipeline stage, filled as array elements reach
// terminal states. It is driven entirely by events from the bus.
type StageUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu     sync.Mutex
	stages map[string]*stageBar
	done   chan struct{}
}

// stageBar tracks the elements seen for one stage.
type stageBar struct {
	bar      *mpb.Bar
	index    int
	total    int
	elements map[string]scheduler.State
	terminal int
	failed   int
}

// NewStageUI creates a StageUI on stderr, with bars only when stderr is a
// terminal.
func NewStageUI() *StageUI {
	return NewStageUIWithOutput(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewStageUIWithOutput creates a StageUI writing to out.
func NewStageUIWithOutput(out io.Writer, isTerminal bool) *StageUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &StageUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		stages:     make(map[string]*stageBar),
		done:       make(chan struct{}),
	}
}

// Attach consumes every event on bus until the bus is closed.
func (u *StageUI) Attach(bus *events.EventBus) {
	ch := bus.SubscribeAll()
	go func() {
		defer close(u.done)
		for ev := range ch {
			u.Handle(ev)
		}
	}()
}

// Handle applies one event to the display.
func (u *StageUI) Handle(ev events.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch e := ev.(type) {
	case *events.StageEvent:
		switch e.Type() {
		case events.EventStageStarted:
			u.startStage(e)
		case events.EventStageCompleted:
			u.finishStage(e, nil)
		case events.EventStageFailed:
			u.finishStage(e, e.Error)
		}
	case *events.StatusEvent:
		u.observe(e)
	}
}

func (u *StageUI) startStage(e *events.StageEvent) {
	sb := &stageBar{
		index:    e.Index + 1,
		total:    e.Total,
		elements: make(map[string]scheduler.State),
	}
	u.stages[e.Stage] = sb

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Stage [%d/%d]: %s\n", sb.index, sb.total, e.Stage)
		return
	}

	name := e.Stage
	sb.bar = u.progress.New(0,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(s decor.Statistics) string {
				return fmt.Sprintf("[%d/%d] %s", sb.index, sb.total, name)
			}, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
}

// observe counts scheduler element states. Local process ids are numeric
// and carry statuses like RUNNING or ERROR, which are ignored here.
func (u *StageUI) observe(e *events.StatusEvent) {
	sb, ok := u.stages[e.Stage]
	if !ok || !strings.Contains(e.ID, "_") {
		return
	}
	state := scheduler.ParseState(e.Status)
	prev, seen := sb.elements[e.ID]
	if seen && prev.IsTerminal() {
		return
	}
	sb.elements[e.ID] = state
	if state.IsTerminal() {
		sb.terminal++
		if !state.IsSuccess() {
			sb.failed++
		}
	}

	if sb.bar != nil {
		sb.bar.SetTotal(int64(len(sb.elements)), false)
		sb.bar.SetCurrent(int64(sb.terminal))
	}
}

func (u *StageUI) finishStage(e *events.StageEvent, err error) {
	sb, ok := u.stages[e.Stage]
	if !ok {
		return
	}

	var msg string
	if err == nil {
		msg = fmt.Sprintf("✓ %s (%d elements, %s)\n", stageLabel(e), len(sb.elements), e.Duration.Round(time.Second))
		if sb.bar != nil {
			sb.bar.SetTotal(int64(len(sb.elements)), true)
		}
	} else {
		msg = fmt.Sprintf("✗ %s: %d of %d elements failed (%s)\n", stageLabel(e), sb.failed, len(sb.elements), e.Duration.Round(time.Second))
		if sb.bar != nil {
			sb.bar.Abort(false)
		}
	}

	if u.isTerminal {
		u.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(u.out, msg)
	}
}

// stageLabel is the stage name with its scheduler job id, when known.
func stageLabel(e *events.StageEvent) string {
	if e.JobID == "" {
		return e.Stage
	}
	return fmt.Sprintf("%s [job %s]", e.Stage, e.JobID)
}

// Wait blocks until the attached bus is closed and every bar is drawn.
func (u *StageUI) Wait() {
	<-u.done
	u.mu.Lock()
	for _, sb := range u.stages {
		if sb.bar != nil && !sb.bar.Completed() {
			sb.bar.Abort(false)
		}
	}
	u.mu.Unlock()
	u.progress.Wait()
}

// LogWriter returns an io.Writer that prints above the bars.
func (u *StageUI) LogWriter() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if bars are being drawn.
func (u *StageUI) IsTerminal() bool {
	return u.isTerminal
}
