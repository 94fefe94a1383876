package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Log parser names accepted in a stage definition.
const (
	LogParserDefault  = "default"
	LogParserSlurmErr = "slurm-err"
)

// PipelineDef is a YAML pipeline definition.
//
//	output_dir: /data/out/run42
//	stages:
//	  - name: ConvertJob
//	    root_dir: /data/runs/run42
//	    commands: convert.cmds
//	    modules: [bclconvert_3.7.5]
//	    executables: [bcl-convert]
//	    resources:
//	      partition: qiita
//	      wall_time: "24:00:00"
//	  - name: QCJob
//	    root_dir: /data/out/run42/ConvertJob
//	    commands: qc.cmds
//	    output_suffix: .fastq.gz
type PipelineDef struct {
	// OutputDir is the default parent for every stage's output tree.
	OutputDir string     `yaml:"output_dir"`
	Stages    []StageDef `yaml:"stages"`

	// dir is the directory of the definition file; relative paths in the
	// definition resolve against it.
	dir string
}

// StageDef describes one stage.
type StageDef struct {
	Name      string `yaml:"name"`
	RootDir   string `yaml:"root_dir"`
	OutputDir string `yaml:"output_dir"`
	// Commands is a file with one shell command per line.
	Commands    string   `yaml:"commands"`
	WorkDir     string   `yaml:"work_dir"`
	Modules     []string `yaml:"modules"`
	Executables []string `yaml:"executables"`
	SubmitFlags []string `yaml:"submit_flags"`

	MaxArrayLength int         `yaml:"max_array_length"`
	Resources      ResourceDef `yaml:"resources"`

	OutputSuffix string   `yaml:"output_suffix"`
	Quarantine   []string `yaml:"quarantine"`
	LogParser    string   `yaml:"log_parser"`
	ForceFail    bool     `yaml:"force_fail"`
}

// ResourceDef holds the #SBATCH resource requests of a stage.
type ResourceDef struct {
	Partition   string `yaml:"partition"`
	Nodes       int    `yaml:"nodes"`
	Tasks       int    `yaml:"tasks"`
	CPUsPerTask int    `yaml:"cpus_per_task"`
	WallTime    string `yaml:"wall_time"`
	MemPerCPU   string `yaml:"mem_per_cpu"`
	MailUser    string `yaml:"mail_user"`
	PoolSize    int    `yaml:"pool_size"`
}

// LoadPipeline reads and validates a pipeline definition.
func LoadPipeline(path string) (*PipelineDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pipeline file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("pipeline file is empty")
	}

	var def PipelineDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	def.dir = filepath.Dir(abs)

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks stage names, directories, and parser names.
func (p *PipelineDef) Validate() error {
	if len(p.Stages) == 0 {
		return errors.New("pipeline has no stages")
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage %d: name is required", i+1)
		}
		if seen[s.Name] {
			return fmt.Errorf("stage %s: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.RootDir == "" {
			return fmt.Errorf("stage %s: root_dir is required", s.Name)
		}
		if s.OutputDir == "" && p.OutputDir == "" {
			return fmt.Errorf("stage %s: output_dir is required", s.Name)
		}
		if s.Commands == "" {
			return fmt.Errorf("stage %s: commands is required", s.Name)
		}
		if s.MaxArrayLength < 0 {
			return fmt.Errorf("stage %s: max_array_length must not be negative", s.Name)
		}
		switch s.LogParser {
		case "", LogParserDefault, LogParserSlurmErr:
		default:
			return fmt.Errorf("stage %s: unknown log_parser %q", s.Name, s.LogParser)
		}
	}
	return nil
}

// Resolve makes path absolute relative to the definition file.
func (p *PipelineDef) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.dir == "" {
		return path
	}
	return filepath.Join(p.dir, path)
}

// StageOutputDir returns the stage's output parent, falling back to the
// pipeline default.
func (p *PipelineDef) StageOutputDir(s StageDef) string {
	if s.OutputDir != "" {
		return p.Resolve(s.OutputDir)
	}
	return p.Resolve(p.OutputDir)
}

// ReadCommands reads one command per line, skipping blank lines and lines
// starting with '#'.
func ReadCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open commands file: %w", err)
	}
	defer f.Close()

	var cmds []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmds = append(cmds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands file: %w", err)
	}
	return cmds, nil
}
