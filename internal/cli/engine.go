package cli

import (
	"context"
	"fmt"

	"github.com/biocore-hpc/seqjob/internal/config"
	"github.com/biocore-hpc/seqjob/internal/job"
	"github.com/biocore-hpc/seqjob/internal/logging"
	"github.com/biocore-hpc/seqjob/internal/pipeline"
	"github.com/biocore-hpc/seqjob/internal/runner"
	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// engine bundles the collaborators every scheduler-facing command needs.
type engine struct {
	runner  *runner.Runner
	client  *scheduler.Client
	querier scheduler.Querier
	waiter  *scheduler.StateMachine
}

// newEngine wires the runner, sbatch/squeue client, and the configured
// query backend.
func newEngine(cfg *config.Config, log *logging.Logger) (*engine, error) {
	r := runner.New(log)
	client := scheduler.NewClient(r, scheduler.ClientConfig{
		QueryRetries:    cfg.Scheduler.QueryRetries,
		QueryRetryDelay: cfg.QueryRetryDelay(),
	}, log)

	var querier scheduler.Querier = client
	if cfg.Scheduler.QueryBackend == config.BackendSlurmrestd {
		rest, err := scheduler.NewRESTQuerier(scheduler.RESTConfig{
			BaseURL:           cfg.Slurmrestd.URL,
			APIVersion:        cfg.Slurmrestd.APIVersion,
			User:              cfg.Slurmrestd.User,
			Token:             cfg.Slurmrestd.Token,
			RequestsPerSecond: cfg.Slurmrestd.RequestsPerSecond,
			Retries:           cfg.Scheduler.QueryRetries,
			RetryDelay:        cfg.QueryRetryDelay(),
		}, log)
		if err != nil {
			return nil, err
		}
		querier = rest
	}

	return &engine{
		runner:  r,
		client:  client,
		querier: querier,
		waiter:  scheduler.NewStateMachine(querier, nil, log),
	}, nil
}

// buildStages turns a pipeline definition into Jobs, applying config
// defaults for anything a stage leaves unset.
func (e *engine) buildStages(ctx context.Context, def *config.PipelineDef, cfg *config.Config, log *logging.Logger) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(def.Stages))
	for _, s := range def.Stages {
		commands, err := config.ReadCommands(def.Resolve(s.Commands))
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}

		j, err := job.New(ctx, stageConfig(def, s, cfg, commands), job.Deps{
			Executor:  e.runner,
			Submitter: e.client,
			Waiter:    e.waiter,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func stageConfig(def *config.PipelineDef, s config.StageDef, cfg *config.Config, commands []string) job.Config {
	maxLen := s.MaxArrayLength
	if maxLen == 0 {
		maxLen = cfg.Job.MaxArrayLength
	}
	modules := s.Modules
	if len(modules) == 0 {
		modules = cfg.GetModules()
	}
	flags := s.SubmitFlags
	if len(flags) == 0 {
		flags = cfg.GetSubmitFlags()
	}

	res := job.Resources{
		Partition:   s.Resources.Partition,
		Nodes:       s.Resources.Nodes,
		Tasks:       s.Resources.Tasks,
		CPUsPerTask: s.Resources.CPUsPerTask,
		WallTime:    s.Resources.WallTime,
		MemPerCPU:   s.Resources.MemPerCPU,
		MailUser:    s.Resources.MailUser,
		PoolSize:    s.Resources.PoolSize,
	}
	if res.Partition == "" {
		res.Partition = cfg.Scheduler.Partition
	}
	if res.MailUser == "" {
		res.MailUser = cfg.Job.MailUser
	}

	var parser job.LogParser = job.DefaultLogParser{}
	if s.LogParser == config.LogParserSlurmErr {
		parser = job.SlurmErrLogParser{}
	}

	return job.Config{
		Name:            s.Name,
		RootDir:         def.Resolve(s.RootDir),
		OutputDir:       def.StageOutputDir(s),
		ExecutablePaths: s.Executables,
		ModulesToLoad:   modules,
		MaxArrayLength:  maxLen,
		Script: &job.ArrayScript{
			Commands:  commands,
			Resources: res,
			WorkDir:   def.Resolve(s.WorkDir),
		},
		LogParser:          parser,
		SubmitFlags:        flags,
		PollInterval:       cfg.PollInterval(),
		OutputSuffix:       s.OutputSuffix,
		QuarantinePatterns: s.Quarantine,
		ForceFail:          s.ForceFail,
	}
}

// newPipeline adds jobs to a pipeline runner in definition order.
func newPipeline(jobs []*job.Job, r *pipeline.Runner) error {
	for _, j := range jobs {
		if err := r.Add(j); err != nil {
			return err
		}
	}
	return nil
}
