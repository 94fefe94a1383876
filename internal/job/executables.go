package job

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/shell"
)

// validateExecutables resolves each configured executable in the
// environment the job script will run in, after loading its modules.
func (j *Job) validateExecutables(ctx context.Context) error {
	if len(j.cfg.ExecutablePaths) == 0 {
		return nil
	}
	if j.deps.Executor == nil {
		return errs.Configf("job %s: executable validation needs an executor", j.cfg.Name)
	}

	for _, exe := range j.cfg.ExecutablePaths {
		command := resolveCommand(exe, j.cfg.ModulesToLoad)
		out, err := j.deps.Executor.Execute(ctx, command, nil)
		resolved := strings.TrimSpace(out)
		if err != nil || resolved == "" {
			return &errs.ConfigurationError{
				Msg: fmt.Sprintf("job %s: executable %s not found", j.cfg.Name, exe),
				Err: err,
			}
		}
		if filepath.IsAbs(exe) && resolved != exe {
			return errs.Configf("job %s: executable %s resolves to %s", j.cfg.Name, exe, resolved)
		}
		j.logger.Debug().Str("executable", exe).Str("resolved", resolved).Msg("Executable found")
	}
	return nil
}

func resolveCommand(exe string, modules []string) string {
	check := "command -v " + shell.Quote(exe)
	if len(modules) == 0 {
		return check
	}
	return fmt.Sprintf("module load %s; %s", shell.Join(modules), check)
}
