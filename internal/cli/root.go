// Package cli provides the command-line interface for seqjob.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/config"
	"github.com/biocore-hpc/seqjob/internal/logging"
	"github.com/biocore-hpc/seqjob/internal/version"
)

var (
	// Global flags
	cfgFile string
	logFile string
	verbose bool

	// Global logger
	logger *logging.Logger

	// Loaded configuration
	appConfig *config.Config

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seqjob",
		Short: "Submit and track sequencing pipeline stages on SLURM",
		Long: `seqjob ` + version.Version + ` - Built: ` + version.BuildTime + `
Runs multi-stage sequencing pipelines on a SLURM cluster.

Each stage is a list of shell commands folded into one array job. seqjob
submits the stage, polls the scheduler until every array element has
finished, and only then moves on to the next stage. Finished stages leave a
job_completed marker so an interrupted pipeline can be resumed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			appConfig = cfg

			path := logFile
			if path == "" {
				path = cfg.Logging.File
			}
			if path != "" {
				logger = logging.NewFileLogger(path)
			} else {
				logger = logging.NewDefaultCLILogger()
			}

			level := logging.ParseLevel(cfg.Logging.Level)
			if verbose {
				level = zerolog.DebugLevel
			}
			logging.SetGlobalLevel(level)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logger != nil {
				return logger.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default ~/.config/seqjob/seqjob.conf)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling...\n", sig)
				fmt.Fprintf(os.Stderr, "   Submitted SLURM jobs keep running; use scancel to stop them.\n\n")
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	cancelFunc()

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newChunkCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetConfig returns the loaded configuration, or defaults before the root
// command has run.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.New()
	}
	return appConfig
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
