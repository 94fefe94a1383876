// Package config loads seqjob's scheduler configuration and pipeline
// definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/biocore-hpc/seqjob/internal/constants"
)

// Query backends.
const (
	BackendSqueue     = "squeue"
	BackendSlurmrestd = "slurmrestd"
)

// Config is the scheduler configuration shared by every pipeline run.
//
// INI format:
//
//	[scheduler]
//	partition = qiita
//	poll_interval_seconds = 10
//	query_retries = 3
//	query_retry_delay_seconds = 10
//	query_backend = squeue
//	submit_flags = --qos=high
//
//	[slurmrestd]
//	url = http://localhost:6820
//	api_version = v0.0.40
//	user = qiita
//	token =
//	requests_per_second = 5
//
//	[job]
//	max_array_length = 1000
//	modules = bclconvert_3.7.5
//	mail_user = lab@example.org
//
//	[logging]
//	file = /var/log/seqjob/seqjob.log
//	level = info
type Config struct {
	Scheduler  SchedulerConfig
	Slurmrestd SlurmrestdConfig
	Job        JobDefaults
	Logging    LoggingConfig
}

// SchedulerConfig controls submission and polling.
type SchedulerConfig struct {
	// Partition is the default SLURM partition for generated scripts.
	Partition string

	// PollIntervalSeconds is the pause between squeue polls.
	// Minimum: 1, Default: 10
	PollIntervalSeconds int

	// QueryRetries is the number of additional squeue attempts after a
	// transport failure.
	// Minimum: 0, Maximum: 10, Default: 3
	QueryRetries int

	// QueryRetryDelaySeconds is the fixed pause between squeue attempts.
	// Minimum: 0, Default: 10
	QueryRetryDelaySeconds int

	// QueryBackend selects squeue or slurmrestd for state queries.
	QueryBackend string

	// SubmitFlags is a space-separated list of extra sbatch flags.
	SubmitFlags string
}

// SlurmrestdConfig points at the SLURM REST daemon.
type SlurmrestdConfig struct {
	URL               string
	APIVersion        string
	User              string
	Token             string
	RequestsPerSecond float64
}

// JobDefaults apply to stages that do not override them.
type JobDefaults struct {
	// MaxArrayLength should match MaxArraySize in slurm.conf.
	MaxArrayLength int
	// Modules is a comma-separated list of environment modules.
	Modules  string
	MailUser string
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// File enables JSON logging to a rotated file when set.
	File  string
	Level string
}

// Config validation errors
var (
	ErrInvalidPollInterval  = errors.New("poll_interval_seconds must be at least 1")
	ErrInvalidQueryRetries  = errors.New("query_retries must be between 0 and 10")
	ErrInvalidRetryDelay    = errors.New("query_retry_delay_seconds must not be negative")
	ErrInvalidQueryBackend  = errors.New("query_backend must be squeue or slurmrestd")
	ErrMissingSlurmrestdURL = errors.New("slurmrestd url is required when query_backend = slurmrestd")
	ErrInvalidMaxArrayLen   = errors.New("max_array_length must be positive")
	ErrInvalidRequestRate   = errors.New("requests_per_second must be positive")
)

// DefaultConfigPath returns ~/.config/seqjob/seqjob.conf.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "seqjob", "seqjob.conf"), nil
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			PollIntervalSeconds:    int(constants.DefaultPollInterval / time.Second),
			QueryRetries:           constants.QueryRetries,
			QueryRetryDelaySeconds: int(constants.QueryRetryDelay / time.Second),
			QueryBackend:           BackendSqueue,
		},
		Slurmrestd: SlurmrestdConfig{
			APIVersion:        constants.DefaultRESTVersion,
			RequestsPerSecond: constants.DefaultRESTRatePerSec,
		},
		Job: JobDefaults{
			MaxArrayLength: constants.DefaultMaxArrayLength,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path.
// If path is empty, uses the default path.
// A missing file yields the defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	sched := iniFile.Section("scheduler")
	cfg.Scheduler.Partition = sched.Key("partition").String()
	cfg.Scheduler.PollIntervalSeconds = sched.Key("poll_interval_seconds").MustInt(cfg.Scheduler.PollIntervalSeconds)
	cfg.Scheduler.QueryRetries = sched.Key("query_retries").MustInt(cfg.Scheduler.QueryRetries)
	cfg.Scheduler.QueryRetryDelaySeconds = sched.Key("query_retry_delay_seconds").MustInt(cfg.Scheduler.QueryRetryDelaySeconds)
	cfg.Scheduler.QueryBackend = sched.Key("query_backend").MustString(BackendSqueue)
	cfg.Scheduler.SubmitFlags = sched.Key("submit_flags").String()

	rest := iniFile.Section("slurmrestd")
	cfg.Slurmrestd.URL = rest.Key("url").String()
	cfg.Slurmrestd.APIVersion = rest.Key("api_version").MustString(constants.DefaultRESTVersion)
	cfg.Slurmrestd.User = rest.Key("user").String()
	cfg.Slurmrestd.Token = rest.Key("token").String()
	cfg.Slurmrestd.RequestsPerSecond = rest.Key("requests_per_second").MustFloat64(constants.DefaultRESTRatePerSec)

	job := iniFile.Section("job")
	cfg.Job.MaxArrayLength = job.Key("max_array_length").MustInt(constants.DefaultMaxArrayLength)
	cfg.Job.Modules = job.Key("modules").String()
	cfg.Job.MailUser = job.Key("mail_user").String()

	logSection := iniFile.Section("logging")
	cfg.Logging.File = logSection.Key("file").String()
	cfg.Logging.Level = logSection.Key("level").MustString("info")

	if token := os.Getenv("SLURM_JWT"); token != "" && cfg.Slurmrestd.Token == "" {
		cfg.Slurmrestd.Token = token
	}

	return cfg, nil
}

// Save writes cfg to path through a temporary file and rename.
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sched, err := iniFile.NewSection("scheduler")
	if err != nil {
		return fmt.Errorf("failed to create scheduler section: %w", err)
	}
	sched.Key("partition").SetValue(cfg.Scheduler.Partition)
	sched.Key("poll_interval_seconds").SetValue(fmt.Sprintf("%d", cfg.Scheduler.PollIntervalSeconds))
	sched.Key("query_retries").SetValue(fmt.Sprintf("%d", cfg.Scheduler.QueryRetries))
	sched.Key("query_retry_delay_seconds").SetValue(fmt.Sprintf("%d", cfg.Scheduler.QueryRetryDelaySeconds))
	sched.Key("query_backend").SetValue(cfg.Scheduler.QueryBackend)
	sched.Key("submit_flags").SetValue(cfg.Scheduler.SubmitFlags)

	rest, err := iniFile.NewSection("slurmrestd")
	if err != nil {
		return fmt.Errorf("failed to create slurmrestd section: %w", err)
	}
	rest.Key("url").SetValue(cfg.Slurmrestd.URL)
	rest.Key("api_version").SetValue(cfg.Slurmrestd.APIVersion)
	rest.Key("user").SetValue(cfg.Slurmrestd.User)
	rest.Key("token").SetValue(cfg.Slurmrestd.Token)
	rest.Key("requests_per_second").SetValue(fmt.Sprintf("%g", cfg.Slurmrestd.RequestsPerSecond))

	job, err := iniFile.NewSection("job")
	if err != nil {
		return fmt.Errorf("failed to create job section: %w", err)
	}
	job.Key("max_array_length").SetValue(fmt.Sprintf("%d", cfg.Job.MaxArrayLength))
	job.Key("modules").SetValue(cfg.Job.Modules)
	job.Key("mail_user").SetValue(cfg.Job.MailUser)

	logSection, err := iniFile.NewSection("logging")
	if err != nil {
		return fmt.Errorf("failed to create logging section: %w", err)
	}
	logSection.Key("file").SetValue(cfg.Logging.File)
	logSection.Key("level").SetValue(cfg.Logging.Level)

	// The token is a credential: user read/write only.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks cfg and returns the first problem found.
func (cfg *Config) Validate() error {
	if cfg.Scheduler.PollIntervalSeconds < int(constants.MinPollInterval/time.Second) {
		return ErrInvalidPollInterval
	}
	if cfg.Scheduler.QueryRetries < 0 || cfg.Scheduler.QueryRetries > 10 {
		return ErrInvalidQueryRetries
	}
	if cfg.Scheduler.QueryRetryDelaySeconds < 0 {
		return ErrInvalidRetryDelay
	}
	switch cfg.Scheduler.QueryBackend {
	case BackendSqueue:
	case BackendSlurmrestd:
		if strings.TrimSpace(cfg.Slurmrestd.URL) == "" {
			return ErrMissingSlurmrestdURL
		}
		if cfg.Slurmrestd.RequestsPerSecond <= 0 {
			return ErrInvalidRequestRate
		}
	default:
		return ErrInvalidQueryBackend
	}
	if cfg.Job.MaxArrayLength <= 0 {
		return ErrInvalidMaxArrayLen
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (cfg *Config) PollInterval() time.Duration {
	return time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second
}

// QueryRetryDelay returns the squeue retry delay as a duration.
func (cfg *Config) QueryRetryDelay() time.Duration {
	return time.Duration(cfg.Scheduler.QueryRetryDelaySeconds) * time.Second
}

// GetSubmitFlags splits submit_flags on whitespace.
func (cfg *Config) GetSubmitFlags() []string {
	return strings.Fields(cfg.Scheduler.SubmitFlags)
}

// GetModules returns the default modules as a slice.
func (cfg *Config) GetModules() []string {
	return splitList(cfg.Job.Modules)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
