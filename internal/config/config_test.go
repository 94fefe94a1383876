package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	if cfg.Scheduler.PollIntervalSeconds != 10 {
		t.Errorf("Expected PollIntervalSeconds=10, got %d", cfg.Scheduler.PollIntervalSeconds)
	}
	if cfg.Scheduler.QueryRetries != 3 {
		t.Errorf("Expected QueryRetries=3, got %d", cfg.Scheduler.QueryRetries)
	}
	if cfg.Scheduler.QueryBackend != BackendSqueue {
		t.Errorf("Expected QueryBackend=squeue, got %s", cfg.Scheduler.QueryBackend)
	}
	if cfg.Job.MaxArrayLength != 1000 {
		t.Errorf("Expected MaxArrayLength=1000, got %d", cfg.Job.MaxArrayLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "seqjob.conf")

	cfg := New()
	cfg.Scheduler.Partition = "qiita"
	cfg.Scheduler.PollIntervalSeconds = 30
	cfg.Scheduler.QueryRetries = 5
	cfg.Scheduler.QueryRetryDelaySeconds = 2
	cfg.Scheduler.QueryBackend = BackendSlurmrestd
	cfg.Scheduler.SubmitFlags = "--qos=high --account=lab"
	cfg.Slurmrestd.URL = "http://slurm:6820"
	cfg.Slurmrestd.User = "qiita"
	cfg.Slurmrestd.Token = "secret"
	cfg.Slurmrestd.RequestsPerSecond = 2.5
	cfg.Job.MaxArrayLength = 500
	cfg.Job.Modules = "bclconvert_3.7.5, fastqc_0.11.5"
	cfg.Job.MailUser = "lab@example.org"
	cfg.Logging.Level = "debug"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.Scheduler != cfg.Scheduler {
		t.Errorf("scheduler mismatch: %+v vs %+v", loaded.Scheduler, cfg.Scheduler)
	}
	if loaded.Slurmrestd != cfg.Slurmrestd {
		t.Errorf("slurmrestd mismatch: %+v vs %+v", loaded.Slurmrestd, cfg.Slurmrestd)
	}
	if loaded.Job != cfg.Job {
		t.Errorf("job mismatch: %+v vs %+v", loaded.Job, cfg.Job)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Expected level=debug, got %s", loaded.Logging.Level)
	}

	if got := loaded.GetSubmitFlags(); len(got) != 2 || got[1] != "--account=lab" {
		t.Errorf("unexpected submit flags: %v", got)
	}
	if got := loaded.GetModules(); len(got) != 2 || got[1] != "fastqc_0.11.5" {
		t.Errorf("unexpected modules: %v", got)
	}
	if loaded.PollInterval() != 30*time.Second {
		t.Errorf("Expected 30s poll interval, got %v", loaded.PollInterval())
	}
	if loaded.QueryRetryDelay() != 2*time.Second {
		t.Errorf("Expected 2s retry delay, got %v", loaded.QueryRetryDelay())
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scheduler.QueryRetries != 3 {
		t.Errorf("Expected defaults, got %+v", cfg.Scheduler)
	}
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqjob.conf")
	content := "[scheduler]\npoll_interval_seconds = 60\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Scheduler.PollIntervalSeconds != 60 {
		t.Errorf("Expected 60, got %d", cfg.Scheduler.PollIntervalSeconds)
	}
	if cfg.Scheduler.QueryRetryDelaySeconds != 10 {
		t.Errorf("Expected default retry delay, got %d", cfg.Scheduler.QueryRetryDelaySeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"poll interval", func(c *Config) { c.Scheduler.PollIntervalSeconds = 0 }, ErrInvalidPollInterval},
		{"retries", func(c *Config) { c.Scheduler.QueryRetries = 11 }, ErrInvalidQueryRetries},
		{"retry delay", func(c *Config) { c.Scheduler.QueryRetryDelaySeconds = -1 }, ErrInvalidRetryDelay},
		{"backend", func(c *Config) { c.Scheduler.QueryBackend = "sacct" }, ErrInvalidQueryBackend},
		{"rest url", func(c *Config) { c.Scheduler.QueryBackend = BackendSlurmrestd }, ErrMissingSlurmrestdURL},
		{"array length", func(c *Config) { c.Job.MaxArrayLength = 0 }, ErrInvalidMaxArrayLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			if got := cfg.Validate(); got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}
