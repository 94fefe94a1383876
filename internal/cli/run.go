package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/config"
	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/pipeline"
	"github.com/biocore-hpc/seqjob/internal/progress"
)

// newRunCmd creates the 'run' command.
func newRunCmd() *cobra.Command {
	var pipelinePath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline definition stage by stage",
		Long: `Run every stage of a YAML pipeline definition in order.

Each stage writes its submission script under <output_dir>/<name>, submits it
with sbatch, and waits until all array elements reach a terminal state. The
pipeline stops at the first failed stage and prints the scheduler states and
any log diagnostics. Stages that already finished are skipped.

Examples:
  seqjob run --pipeline run42.yaml
  seqjob run --pipeline run42.yaml --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, pipelinePath, dryRun)
		},
	}

	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "", "Pipeline definition file (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate stages and print the plan without submitting")
	cmd.MarkFlagRequired("pipeline")

	return cmd
}

func runPipeline(cmd *cobra.Command, pipelinePath string, dryRun bool) error {
	ctx := GetContext()
	log := GetLogger()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	def, err := config.LoadPipeline(pipelinePath)
	if err != nil {
		return err
	}

	// Stage loggers are derived from log, so redirect it above the bars
	// before any stage is built.
	var bus *events.EventBus
	stopUI := func() {}
	if !dryRun {
		bus = events.NewEventBus(0)
		ui := progress.NewStageUI()
		ui.Attach(bus)
		if ui.IsTerminal() {
			log.SetOutput(ui.LogWriter())
			defer log.SetOutput(os.Stderr)
		}
		var once sync.Once
		stopUI = func() {
			once.Do(func() {
				bus.Close()
				ui.Wait()
				if dropped := bus.GetDroppedEventCount(); dropped > 0 {
					log.Debug().Int64("dropped", dropped).Msg("Progress display skipped events")
				}
			})
		}
		defer stopUI()
	}

	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	jobs, err := eng.buildStages(ctx, def, cfg, log)
	if err != nil {
		return err
	}

	if dryRun {
		for i, j := range jobs {
			state := "pending"
			if j.IsCompleted() {
				state = "completed"
			}
			fmt.Fprintf(out, "%d. %-20s %-10s %s\n", i+1, j.Name(), state, j.OutputPath())
		}
		return nil
	}

	r := pipeline.NewRunner(bus, log)
	if err := newPipeline(jobs, r); err != nil {
		return err
	}

	runErr := r.Run(ctx, nil)
	stopUI()

	if runErr != nil {
		var jobErr *errs.JobFailedError
		if errors.As(runErr, &jobErr) {
			reportFailure(cmd.ErrOrStderr(), jobErr)
			return fmt.Errorf("pipeline %s failed at job %s: %w", r.RunID(), jobErr.JobID, errs.ErrPipeline)
		}
		return fmt.Errorf("pipeline %s failed: %w", r.RunID(), runErr)
	}

	fmt.Fprintf(out, "Pipeline %s completed (%d stages)\n", r.RunID(), len(jobs))
	return nil
}

// reportFailure prints the job error, including any log lines the stage's
// parser collected.
func reportFailure(w io.Writer, jobErr *errs.JobFailedError) {
	fmt.Fprintf(w, "\nStage failed:\n%s\n", jobErr.Error())
	for _, st := range jobErr.FailedStates() {
		fmt.Fprintf(w, "  %-15s %d\n", st, jobErr.States[st])
	}
}
