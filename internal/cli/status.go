package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/progress"
	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status <job-id> [job-id...]",
		Short: "Show scheduler states for jobs",
		Long: `Query the scheduler for the given job ids and print one row per job or
array element.

With --watch, poll until every element is terminal, then report whether each
job succeeded.

Examples:
  seqjob status 4242
  seqjob status 4242 4243 --watch --interval 30s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, watch, interval)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until every job is terminal")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default from config)")

	return cmd
}

func runStatus(cmd *cobra.Command, ids []string, watch bool, interval time.Duration) error {
	ctx := GetContext()
	log := GetLogger()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	if !watch {
		states, err := eng.querier.Query(ctx, ids)
		if err != nil {
			return err
		}
		printStates(out, states)
		return nil
	}

	if interval <= 0 {
		interval = cfg.PollInterval()
	}

	bar := progress.NewWatchBarWithWriter(cmd.ErrOrStderr(), "Waiting")
	states, err := eng.waiter.Wait(ctx, ids, interval, bar.Observe)
	bar.Finish()
	if err != nil {
		return err
	}

	printStates(out, states)

	var failed error
	for _, id := range ids {
		if err := scheduler.Classify(id, states); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			failed = err
		}
	}
	return failed
}

func printStates(w io.Writer, states map[string]scheduler.State) {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%-20s %s\n", "JOB ID", "STATE")
	for _, k := range keys {
		fmt.Fprintf(w, "%-20s %s\n", k, states[k])
	}
}
