// Package job implements one pipeline stage backed by a SLURM submission.
//
// A Job owns a directory tree under its output directory, generates its
// submission script, submits it, waits for every array element to finish,
// and leaves a completion marker behind so a restarted pipeline can skip it.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/logging"
	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// ForcedFailureMsg is the message of the error raised by a force-failed job.
const ForcedFailureMsg = "This job died."

// Submitter submits a script and returns the scheduler job id.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (string, error)
}

// Waiter blocks until every id is terminal.
type Waiter interface {
	Wait(ctx context.Context, ids []string, pollInterval time.Duration, onStatus events.StatusFunc) (map[string]scheduler.State, error)
}

// Config describes one stage.
type Config struct {
	Name string
	// RootDir is the stage input directory. It must already exist.
	RootDir string
	// OutputDir is the parent of the job's own tree, OutputDir/Name.
	OutputDir string

	ExecutablePaths []string
	ModulesToLoad   []string
	MaxArrayLength  int

	// Script writes the submission script. Required.
	Script ScriptGenerator
	// LogParser extracts diagnostics after a failure. Nil means DefaultLogParser.
	LogParser LogParser

	SubmitFlags  []string
	PollInterval time.Duration

	// OutputSuffix and QuarantinePatterns drive Audit.
	OutputSuffix       string
	QuarantinePatterns []string

	// ForceFail makes Run fail at submission without contacting the scheduler.
	ForceFail bool
	// SkipExecutableValidation disables the command -v checks in New.
	SkipExecutableValidation bool
}

// Deps are the collaborators a Job talks to.
type Deps struct {
	// Executor resolves executables during validation.
	Executor  scheduler.Executor
	Submitter Submitter
	Waiter    Waiter
	Logger    *logging.Logger
}

// Job is a single submit-wait-classify unit.
type Job struct {
	cfg        Config
	outputPath string
	logPath    string
	deps       Deps
	logger     *logging.Logger

	lastJobID string
}

// New validates cfg, creates the job's directories, and resolves its
// executables.
func New(ctx context.Context, cfg Config, deps Deps) (*Job, error) {
	if cfg.Name == "" || strings.ContainsRune(cfg.Name, filepath.Separator) {
		return nil, errs.Configf("invalid job name %q", cfg.Name)
	}
	if cfg.MaxArrayLength <= 0 {
		return nil, errs.Configf("job %s: max array length must be positive, got %d", cfg.Name, cfg.MaxArrayLength)
	}
	if cfg.Script == nil {
		return nil, errs.Configf("job %s: no script generator configured", cfg.Name)
	}
	if cfg.OutputDir == "" {
		return nil, errs.Configf("job %s: output directory is required", cfg.Name)
	}

	info, err := os.Stat(cfg.RootDir)
	if err != nil {
		return nil, &errs.ConfigurationError{Msg: fmt.Sprintf("job %s: root directory %q does not exist", cfg.Name, cfg.RootDir), Err: err}
	}
	if !info.IsDir() {
		return nil, errs.Configf("job %s: root directory %q is not a directory", cfg.Name, cfg.RootDir)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.DefaultPollInterval
	}
	if cfg.LogParser == nil {
		cfg.LogParser = DefaultLogParser{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}

	j := &Job{
		cfg:        cfg,
		outputPath: filepath.Join(cfg.OutputDir, cfg.Name),
		deps:       deps,
		logger:     deps.Logger.Named("job").WithField("stage", cfg.Name),
	}
	j.logPath = filepath.Join(j.outputPath, constants.LogDirName)

	if err := os.MkdirAll(j.logPath, 0755); err != nil {
		return nil, &errs.ConfigurationError{Msg: fmt.Sprintf("job %s: cannot create %s", cfg.Name, j.logPath), Err: err}
	}

	if !cfg.SkipExecutableValidation {
		if err := j.validateExecutables(ctx); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// Name returns the stage name.
func (j *Job) Name() string { return j.cfg.Name }

// RootDir returns the stage input directory.
func (j *Job) RootDir() string { return j.cfg.RootDir }

// OutputPath returns the job's own output tree.
func (j *Job) OutputPath() string { return j.outputPath }

// LogPath returns the job's log directory.
func (j *Job) LogPath() string { return j.logPath }

// LastJobID returns the id of the most recent submission, if any.
func (j *Job) LastJobID() string { return j.lastJobID }

// Run executes the stage unless it already completed in an earlier run.
func (j *Job) Run(ctx context.Context, onStatus events.StatusFunc) error {
	if j.IsCompleted() {
		j.logger.Info().Str("marker", j.markerPath()).Msg("Stage already completed, skipping")
		return nil
	}

	scriptPath, err := j.cfg.Script.Generate(j.layout())
	if err != nil {
		return err
	}
	j.logger.Debug().Str("script", scriptPath).Msg("Generated submission script")

	if err := j.clearSlotMarkers(); err != nil {
		return err
	}

	err = j.submitAndWait(ctx, scriptPath, onStatus)

	var jobErr *errs.JobFailedError
	if errors.As(err, &jobErr) {
		return j.enrich(jobErr)
	}
	if err != nil {
		return err
	}

	if err := j.MarkCompleted(); err != nil {
		return err
	}
	j.logger.Info().Str("job_id", j.lastJobID).Msg("Stage completed")
	return nil
}

func (j *Job) submitAndWait(ctx context.Context, scriptPath string, onStatus events.StatusFunc) error {
	if j.cfg.ForceFail {
		return &errs.JobFailedError{Msg: ForcedFailureMsg}
	}

	id, err := j.deps.Submitter.Submit(ctx, scheduler.SubmitRequest{
		ScriptPath: scriptPath,
		Flags:      j.cfg.SubmitFlags,
		WorkingDir: j.outputPath,
		OnStatus:   onStatus,
	})
	if err != nil {
		return err
	}
	j.lastJobID = id

	states, err := j.deps.Waiter.Wait(ctx, []string{id}, j.cfg.PollInterval, onStatus)
	if err != nil {
		return err
	}
	if err := scheduler.Classify(id, states); err != nil {
		return err
	}
	return j.checkSlotMarkers(id)
}

// enrich returns a copy of jobErr carrying the lines the LogParser found.
func (j *Job) enrich(jobErr *errs.JobFailedError) error {
	lines, err := j.cfg.LogParser.Parse(j.logPath)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Failed to parse job logs")
	}
	enriched := &errs.JobFailedError{
		JobID:       jobErr.JobID,
		Msg:         jobErr.Msg,
		States:      jobErr.States,
		FailedSlots: jobErr.FailedSlots,
		LogLines:    append(append([]string(nil), jobErr.LogLines...), lines...),
	}
	j.logger.Error().Str("job_id", jobErr.JobID).Int("log_lines", len(lines)).Msg(jobErr.Msg)
	return enriched
}

func (j *Job) markerPath() string {
	return filepath.Join(j.outputPath, constants.CompletionMarker)
}

// MarkCompleted writes the completion marker.
func (j *Job) MarkCompleted() error {
	f, err := os.Create(j.markerPath())
	if err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return f.Close()
}

// IsCompleted reports whether the completion marker exists.
func (j *Job) IsCompleted() bool {
	_, err := os.Stat(j.markerPath())
	return err == nil
}

func (j *Job) layout() Layout {
	return Layout{
		Name:           j.cfg.Name,
		RootDir:        j.cfg.RootDir,
		OutputPath:     j.outputPath,
		LogPath:        j.logPath,
		Modules:        j.cfg.ModulesToLoad,
		MaxArrayLength: j.cfg.MaxArrayLength,
	}
}
