// Package pipeline runs stages strictly one after another.
package pipeline

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/logging"
)

// Stage is one unit of pipeline work. *job.Job implements it.
type Stage interface {
	Name() string
	Run(ctx context.Context, onStatus events.StatusFunc) error
}

// scheduled is implemented by stages backed by a scheduler job.
type scheduled interface {
	LastJobID() string
}

// Runner orchestrates an ordered list of stages.
type Runner struct {
	stages []Stage
	names  map[string]struct{}
	bus    *events.EventBus
	logger *logging.Logger
	runID  string
}

// NewRunner creates an empty Runner. bus may be nil.
func NewRunner(bus *events.EventBus, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{
		names:  make(map[string]struct{}),
		bus:    bus,
		logger: logger.Named("pipeline"),
	}
}

// Add appends stage. Nil stages and duplicate names are rejected so that
// two stages never share an output tree.
func (r *Runner) Add(stage Stage) error {
	if isNil(stage) {
		return errs.Configf("cannot add a nil stage")
	}
	name := stage.Name()
	if name == "" {
		return errs.Configf("stage has no name")
	}
	if _, dup := r.names[name]; dup {
		return errs.Configf("duplicate stage %q", name)
	}
	r.names[name] = struct{}{}
	r.stages = append(r.stages, stage)
	return nil
}

// Stages returns the stages in run order.
func (r *Runner) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// RunID returns the id of the most recent Run, or "" before the first.
func (r *Runner) RunID() string { return r.runID }

// Run executes every stage in insertion order and returns the first error
// unchanged. Stage k+1 never starts unless stage k returned nil.
func (r *Runner) Run(ctx context.Context, onStatus events.StatusFunc) error {
	r.runID = uuid.New().String()
	log := r.logger.WithField("run_id", r.runID)
	total := len(r.stages)

	log.Info().Int("stages", total).Msg("Pipeline started")
	start := time.Now()

	for i, stage := range r.stages {
		name := stage.Name()
		stageLog := log.WithField("stage", name)

		r.publish(events.EventStageStarted, events.StageEvent{Stage: name, Index: i, Total: total})
		stageLog.Info().Int("index", i+1).Int("total", total).Msg("Stage started")

		stageStart := time.Now()
		sink := events.Chain(onStatus, r.bus.StatusSink(name))
		err := stage.Run(ctx, sink)
		elapsed := time.Since(stageStart)
		jobID := lastJobID(stage)

		if err != nil {
			r.publish(events.EventStageFailed, events.StageEvent{
				Stage: name, Index: i, Total: total, JobID: jobID, Duration: elapsed, Error: err,
			})
			stageLog.Error().Err(err).Dur("elapsed", elapsed).Msg("Stage failed")
			return err
		}

		r.publish(events.EventStageCompleted, events.StageEvent{
			Stage: name, Index: i, Total: total, JobID: jobID, Duration: elapsed,
		})
		stageLog.Info().Str("job_id", jobID).Dur("elapsed", elapsed).Msg("Stage completed")
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Pipeline completed")
	return nil
}

func (r *Runner) publish(eventType events.EventType, ev events.StageEvent) {
	if r.bus != nil {
		r.bus.PublishStage(eventType, ev)
	}
}

func lastJobID(stage Stage) string {
	if s, ok := stage.(scheduled); ok {
		return s.LastJobID()
	}
	return ""
}

// isNil also catches a nil pointer stored in a non-nil Stage interface.
func isNil(stage Stage) bool {
	if stage == nil {
		return true
	}
	v := reflect.ValueOf(stage)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
