package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/config"
	"github.com/biocore-hpc/seqjob/internal/job"
)

// newAuditCmd creates the 'audit' command.
func newAuditCmd() *cobra.Command {
	var (
		outputDir  string
		suffix     string
		idsFile    string
		quarantine []string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare a stage's outputs with the expected sample ids",
		Long: `Walk an output directory for files ending in --suffix, attribute each one to
the longest matching expected id, and print every id that is missing an
output or that produced an unexpected one.

Files under paths matching a --quarantine glob are ignored. The default
quarantine is **/zero_files.

Example:
  seqjob audit --output /data/out/run42/QCJob --suffix .fastq.gz --ids samples.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := config.ReadCommands(idsFile)
			if err != nil {
				return err
			}
			diff, err := job.AuditDir(outputDir, suffix, quarantine, expected)
			if err != nil {
				return err
			}
			for _, id := range diff {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if len(diff) > 0 {
				GetLogger().Warn().Int("count", len(diff)).Str("output", outputDir).Msg("Audit found mismatched ids")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Stage output directory (required)")
	cmd.Flags().StringVarP(&suffix, "suffix", "s", "", "Output file suffix (required)")
	cmd.Flags().StringVar(&idsFile, "ids", "", "File with one expected id per line (required)")
	cmd.Flags().StringSliceVar(&quarantine, "quarantine", nil, "Glob of paths to ignore (repeatable)")
	cmd.MarkFlagRequired("output")
	cmd.MarkFlagRequired("suffix")
	cmd.MarkFlagRequired("ids")

	return cmd
}
