package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/biocore-hpc/seqjob/internal/array"
	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/errs"
	"github.com/biocore-hpc/seqjob/internal/shell"
)

// Layout is the on-disk context a ScriptGenerator writes into.
type Layout struct {
	Name           string
	RootDir        string
	OutputPath     string
	LogPath        string
	Modules        []string
	MaxArrayLength int
}

// ScriptPath is where the submission script for l lives.
func (l Layout) ScriptPath() string {
	return filepath.Join(l.OutputPath, l.Name+constants.ScriptExt)
}

// DetailsPath is where the per-slot command list for l lives.
func (l Layout) DetailsPath() string {
	return filepath.Join(l.OutputPath, l.Name+constants.ArrayDetailsExt)
}

// SlotMarkerPath is the sentinel the dispatch stanza touches when array
// slot (1-based) exits 0.
func (l Layout) SlotMarkerPath(slot int) string {
	return filepath.Join(l.LogPath, fmt.Sprintf("%s_%d%s", l.Name, slot, constants.SlotMarkerExt))
}

// ScriptGenerator writes a submission script and returns its path.
type ScriptGenerator interface {
	Generate(l Layout) (string, error)
}

// Resources are the #SBATCH resource requests for a script.
type Resources struct {
	Partition   string
	Nodes       int
	Tasks       int
	CPUsPerTask int
	// WallTime in SLURM syntax, e.g. "24:00:00" or "2-00:00:00".
	WallTime string
	// MemPerCPU in SLURM syntax, e.g. "4G".
	MemPerCPU string
	MailUser  string
	// PoolSize caps concurrently running slots. Zero means DefaultPoolSize.
	PoolSize int
}

// ArrayScript fans a list of commands out over a SLURM array job.
type ArrayScript struct {
	Commands  []string
	Resources Resources
	// WorkDir is entered before dispatch. Empty means the job's RootDir.
	WorkDir string
}

// Generate writes <name>.array-details and <name>.sh under l.OutputPath.
func (a *ArrayScript) Generate(l Layout) (string, error) {
	if len(a.Commands) == 0 {
		return "", errs.Configf("job %s: no commands to submit", l.Name)
	}
	slots, err := array.Chunk(a.Commands, l.MaxArrayLength)
	if err != nil {
		return "", err
	}

	details := strings.Join(slots, "\n") + "\n"
	if err := os.WriteFile(l.DetailsPath(), []byte(details), 0644); err != nil {
		return "", fmt.Errorf("failed to write array details: %w", err)
	}

	script := a.render(l, len(slots))
	if err := os.WriteFile(l.ScriptPath(), []byte(script), 0755); err != nil {
		return "", fmt.Errorf("failed to write job script: %w", err)
	}
	return l.ScriptPath(), nil
}

func (a *ArrayScript) render(l Layout, slots int) string {
	r := a.Resources
	pool := r.PoolSize
	if pool <= 0 {
		pool = constants.DefaultPoolSize
	}
	workDir := a.WorkDir
	if workDir == "" {
		workDir = l.RootDir
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString(fmt.Sprintf("#SBATCH --job-name %s\n", shell.Quote(l.Name)))
	if r.Partition != "" {
		sb.WriteString(fmt.Sprintf("#SBATCH -p %s\n", shell.Quote(r.Partition)))
	}
	if r.Nodes > 0 {
		sb.WriteString(fmt.Sprintf("#SBATCH -N %d\n", r.Nodes))
	}
	if r.Tasks > 0 {
		sb.WriteString(fmt.Sprintf("#SBATCH -n %d\n", r.Tasks))
	}
	if r.CPUsPerTask > 0 {
		sb.WriteString(fmt.Sprintf("#SBATCH -c %d\n", r.CPUsPerTask))
	}
	if r.WallTime != "" {
		sb.WriteString(fmt.Sprintf("#SBATCH --time %s\n", r.WallTime))
	}
	if r.MemPerCPU != "" {
		sb.WriteString(fmt.Sprintf("#SBATCH --mem-per-cpu %s\n", r.MemPerCPU))
	}
	logPrefix := filepath.Join(l.LogPath, l.Name)
	sb.WriteString(fmt.Sprintf("#SBATCH --output %s\n", shell.Quote(logPrefix+"_%A_%a.out")))
	sb.WriteString(fmt.Sprintf("#SBATCH --error %s\n", shell.Quote(logPrefix+"_%A_%a.err")))
	if r.MailUser != "" {
		sb.WriteString("#SBATCH --mail-type=ALL\n")
		sb.WriteString(fmt.Sprintf("#SBATCH --mail-user %s\n", shell.Quote(r.MailUser)))
	}
	sb.WriteString(fmt.Sprintf("#SBATCH --array 1-%d%%%d\n", slots, pool))
	sb.WriteString("\n")

	sb.WriteString("set -x\n")
	sb.WriteString("set +e\n")
	sb.WriteString("date\n")
	sb.WriteString("hostname\n")
	sb.WriteString("echo ${SLURM_JOBID} ${SLURM_ARRAY_TASK_ID}\n")
	if len(l.Modules) > 0 {
		sb.WriteString(fmt.Sprintf("module load %s\n", shell.Join(l.Modules)))
	}
	sb.WriteString(fmt.Sprintf("cd %s || exit 1\n", shell.Quote(workDir)))
	sb.WriteString("\n")

	sb.WriteString("step=${SLURM_ARRAY_TASK_ID}\n")
	sb.WriteString(fmt.Sprintf("cmd=$(sed -n \"${step}p\" %s)\n", shell.Quote(l.DetailsPath())))
	sb.WriteString("if [[ -z \"$cmd\" ]]; then\n")
	sb.WriteString("    echo \"no command for array slot ${step}\" >&2\n")
	sb.WriteString("    exit 1\n")
	sb.WriteString("fi\n")
	sb.WriteString("eval \"$cmd\"\n")
	sb.WriteString("status=$?\n")
	sb.WriteString("if [[ $status -eq 0 ]]; then\n")
	sb.WriteString(fmt.Sprintf("    touch %s\"${step}\"%s\n", shell.Quote(logPrefix+"_"), constants.SlotMarkerExt))
	sb.WriteString("fi\n")
	sb.WriteString("exit $status\n")
	return sb.String()
}
