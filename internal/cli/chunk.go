package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/array"
	"github.com/biocore-hpc/seqjob/internal/config"
)

// newChunkCmd creates the 'chunk' command.
func newChunkCmd() *cobra.Command {
	var maxLen int

	cmd := &cobra.Command{
		Use:   "chunk <commands-file>",
		Short: "Fold a command list into array slots",
		Long: `Print the array slots a commands file would be folded into, one slot per
line with commands joined by ';'. Line N is what array task N runs.

Example:
  seqjob chunk --max-array-length 500 qc.cmds`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxLen == 0 {
				maxLen = GetConfig().Job.MaxArrayLength
			}
			commands, err := config.ReadCommands(args[0])
			if err != nil {
				return err
			}
			slots, err := array.Chunk(commands, maxLen)
			if err != nil {
				return err
			}
			for _, s := range slots {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxLen, "max-array-length", "n", 0, "Maximum array slots (default from config)")

	return cmd
}
