package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/biocore-hpc/seqjob/internal/config"
	"github.com/biocore-hpc/seqjob/internal/job"
	"github.com/biocore-hpc/seqjob/internal/scheduler"
)

// execute runs the full command tree with an isolated config path.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))

	cfgPath := filepath.Join(t.TempDir(), "seqjob.conf")
	root.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAddCommands(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	want := []string{"run", "status", "chunk", "audit", "config"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRunCmd_Flags(t *testing.T) {
	cmd := newRunCmd()

	if cmd.Flags().Lookup("pipeline") == nil {
		t.Error("Expected --pipeline flag")
	}
	if cmd.Flags().Lookup("dry-run") == nil {
		t.Error("Expected --dry-run flag")
	}
	if cmd.RunE == nil {
		t.Error("RunE should be set")
	}
}

func TestStatusCmd_RequiresIDs(t *testing.T) {
	cmd := newStatusCmd()
	if err := cobra.MinimumNArgs(1)(cmd, nil); err == nil {
		t.Error("expected an error with no ids")
	}
	if cmd.Flags().Lookup("watch") == nil || cmd.Flags().Lookup("interval") == nil {
		t.Error("Expected --watch and --interval flags")
	}
}

func TestChunkCmd(t *testing.T) {
	dir := t.TempDir()
	cmds := filepath.Join(dir, "cmds.txt")
	writeFile(t, cmds, "1\n2\n3\n\n# comment\n4\n5\n6\n7\n")

	out, err := execute(t, "", "chunk", "--max-array-length", "2", cmds)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	if out != "1;3;5;7\n2;4;6\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestChunkCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "", "chunk", filepath.Join(t.TempDir(), "none"))
	if err == nil {
		t.Error("expected error for missing commands file")
	}
}

func TestAuditCmd(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "QCJob")
	writeFile(t, filepath.Join(outDir, "S1_R1.fastq.gz"), "x")
	writeFile(t, filepath.Join(outDir, "X_R1.fastq.gz"), "x")
	writeFile(t, filepath.Join(outDir, "zero_files", "S2_R1.fastq.gz"), "")
	ids := filepath.Join(dir, "ids.txt")
	writeFile(t, ids, "S1\nS2\n")

	out, err := execute(t, "", "audit", "--output", outDir, "--suffix", ".fastq.gz", "--ids", ids)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if out != "S2\nX\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRunCmd_DryRun(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "input")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "convert.cmds"), "echo a\necho b\n")
	writeFile(t, filepath.Join(dir, "pipeline.yaml"), `output_dir: out
stages:
  - name: ConvertJob
    root_dir: input
    commands: convert.cmds
`)

	out, err := execute(t, "", "run", "--pipeline", filepath.Join(dir, "pipeline.yaml"), "--dry-run")
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(out, "ConvertJob") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected plan %q", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "ConvertJob", "logs")); err != nil {
		t.Errorf("expected log directory to be created: %v", err)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "seqjob.conf")

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("qiita\n\n\n\n\n\n"))
	rootCmd.SetArgs([]string{"--config", cfgPath, "config", "init"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if cfg.Scheduler.Partition != "qiita" {
		t.Errorf("partition = %q, want qiita", cfg.Scheduler.Partition)
	}

	rootCmd = NewRootCmd()
	AddCommands(rootCmd)
	out.Reset()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgPath, "config", "path"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != cfgPath {
		t.Errorf("config path = %q, want %q", out.String(), cfgPath)
	}
}

func TestStageConfig_AppliesDefaults(t *testing.T) {
	cfg := config.New()
	cfg.Scheduler.Partition = "short"
	cfg.Scheduler.SubmitFlags = "--qos=high"
	cfg.Job.Modules = "bclconvert_3.7.5"
	cfg.Job.MailUser = "lab@example.org"

	def := &config.PipelineDef{OutputDir: "/out"}
	s := config.StageDef{Name: "QCJob", RootDir: "/in", LogParser: config.LogParserSlurmErr}

	jc := stageConfig(def, s, cfg, []string{"echo 1"})

	if jc.MaxArrayLength != cfg.Job.MaxArrayLength {
		t.Errorf("MaxArrayLength = %d", jc.MaxArrayLength)
	}
	if len(jc.ModulesToLoad) != 1 || jc.ModulesToLoad[0] != "bclconvert_3.7.5" {
		t.Errorf("ModulesToLoad = %v", jc.ModulesToLoad)
	}
	if len(jc.SubmitFlags) != 1 || jc.SubmitFlags[0] != "--qos=high" {
		t.Errorf("SubmitFlags = %v", jc.SubmitFlags)
	}
	script, ok := jc.Script.(*job.ArrayScript)
	if !ok {
		t.Fatalf("Script is %T", jc.Script)
	}
	if script.Resources.Partition != "short" || script.Resources.MailUser != "lab@example.org" {
		t.Errorf("Resources = %+v", script.Resources)
	}
	if _, ok := jc.LogParser.(job.SlurmErrLogParser); !ok {
		t.Errorf("LogParser is %T", jc.LogParser)
	}
}

func TestPrintStates_Sorted(t *testing.T) {
	var buf bytes.Buffer
	printStates(&buf, map[string]scheduler.State{
		"42_2": scheduler.StateFailed,
		"42_1": scheduler.StateCompleted,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "42_1") || !strings.HasPrefix(lines[2], "42_2") {
		t.Errorf("rows not sorted: %q", lines)
	}
}

func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":            "(not set)",
		"abc":         "****",
		"eyJhbGc1234": "****1234",
	}
	for in, want := range tests {
		if got := maskToken(in); got != want {
			t.Errorf("maskToken(%q) = %q, want %q", in, got, want)
		}
	}
}
