package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage seqjob configuration",
		Long: `Configuration management commands for seqjob.

Commands:
  init      - Interactive configuration setup
  show      - Display current configuration
  path      - Show configuration file path
  validate  - Check the configuration file`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	configCmd.AddCommand(newConfigValidateCmd())

	return configCmd
}

// configPath returns the --config path or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for seqjob.

The configuration will be saved to ~/.config/seqjob/seqjob.conf unless
--config is given. Press Enter to keep the value shown in brackets.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "seqjob Configuration Setup")
			fmt.Fprintln(out, "==========================")
			fmt.Fprintln(out)

			cfg := GetConfig()
			reader := bufio.NewReader(cmd.InOrStdin())

			cfg.Scheduler.Partition = prompt(reader, out, "Default partition", cfg.Scheduler.Partition)
			cfg.Scheduler.PollIntervalSeconds = promptInt(reader, out, "Poll interval (seconds)", cfg.Scheduler.PollIntervalSeconds)
			cfg.Scheduler.QueryBackend = prompt(reader, out, "Query backend (squeue/slurmrestd)", cfg.Scheduler.QueryBackend)
			if cfg.Scheduler.QueryBackend == config.BackendSlurmrestd {
				cfg.Slurmrestd.URL = prompt(reader, out, "slurmrestd URL", cfg.Slurmrestd.URL)
				cfg.Slurmrestd.User = prompt(reader, out, "slurmrestd user", cfg.Slurmrestd.User)
			}
			cfg.Job.MaxArrayLength = promptInt(reader, out, "Max array length", cfg.Job.MaxArrayLength)
			cfg.Job.Modules = prompt(reader, out, "Default modules (comma-separated)", cfg.Job.Modules)
			cfg.Job.MailUser = prompt(reader, out, "Mail user", cfg.Job.MailUser)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintf(out, "\nConfiguration saved to: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

func prompt(r *bufio.Reader, w io.Writer, label, current string) string {
	if current != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, current)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return current
	}
	return input
}

func promptInt(r *bufio.Reader, w io.Writer, label string, current int) int {
	for {
		s := prompt(r, w, label, strconv.Itoa(current))
		n, err := strconv.Atoi(s)
		if err == nil {
			return n
		}
		fmt.Fprintf(w, "  %q is not a number\n", s)
	}
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "[scheduler]")
			fmt.Fprintf(out, "  partition:          %s\n", orNotSet(cfg.Scheduler.Partition))
			fmt.Fprintf(out, "  poll interval:      %s\n", cfg.PollInterval())
			fmt.Fprintf(out, "  query retries:      %d\n", cfg.Scheduler.QueryRetries)
			fmt.Fprintf(out, "  query retry delay:  %s\n", cfg.QueryRetryDelay())
			fmt.Fprintf(out, "  query backend:      %s\n", cfg.Scheduler.QueryBackend)
			fmt.Fprintf(out, "  submit flags:       %s\n", orNotSet(cfg.Scheduler.SubmitFlags))

			if cfg.Scheduler.QueryBackend == config.BackendSlurmrestd {
				fmt.Fprintln(out, "[slurmrestd]")
				fmt.Fprintf(out, "  url:                %s\n", cfg.Slurmrestd.URL)
				fmt.Fprintf(out, "  api version:        %s\n", cfg.Slurmrestd.APIVersion)
				fmt.Fprintf(out, "  user:               %s\n", orNotSet(cfg.Slurmrestd.User))
				fmt.Fprintf(out, "  token:              %s\n", maskToken(cfg.Slurmrestd.Token))
			}

			fmt.Fprintln(out, "[job]")
			fmt.Fprintf(out, "  max array length:   %d\n", cfg.Job.MaxArrayLength)
			fmt.Fprintf(out, "  modules:            %s\n", orNotSet(cfg.Job.Modules))
			fmt.Fprintf(out, "  mail user:          %s\n", orNotSet(cfg.Job.MailUser))

			fmt.Fprintln(out, "[logging]")
			fmt.Fprintf(out, "  file:               %s\n", orNotSet(cfg.Logging.File))
			fmt.Fprintf(out, "  level:              %s\n", cfg.Logging.Level)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

// newConfigValidateCmd creates the 'config validate' command. Loading and
// validation already happen in the root command; reaching RunE means the
// file is valid.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No configuration at %s; defaults are valid\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: %s\n", path)
			return nil
		},
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// maskToken shows only the last four characters of a credential.
func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
