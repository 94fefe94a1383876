package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger_WritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info().Str("job_id", "123").Msg("Submitted job")

	out := buf.String()
	if !strings.Contains(out, "Submitted job") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "job_id=123") {
		t.Errorf("expected field in output, got %q", out)
	}
}

func TestNamed_AddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf).Named("scheduler")

	l.Warnf("retrying %s", "squeue")

	out := buf.String()
	if !strings.Contains(out, "component=scheduler") {
		t.Errorf("expected component field, got %q", out)
	}
	if !strings.Contains(out, "retrying squeue") {
		t.Errorf("expected formatted message, got %q", out)
	}
}

func TestSetOutput_Redirects(t *testing.T) {
	var first, second bytes.Buffer
	l := NewLogger(&first)
	l.SetOutput(&second)

	l.Info().Msg("after redirect")

	if first.Len() != 0 {
		t.Errorf("old writer should be unused, got %q", first.String())
	}
	if !strings.Contains(second.String(), "after redirect") {
		t.Errorf("new writer missing message, got %q", second.String())
	}
}

func TestNewFileLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqjob.log")
	l := NewFileLogger(path)

	l.Error().Str("stage", "demux").Msg("stage failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"stage":"demux"`) {
		t.Errorf("expected JSON field in file, got %q", string(data))
	}
}

func TestNop_Discards(t *testing.T) {
	l := Nop()
	l.Info().Msg("nothing")
	if l.Close() != nil {
		t.Error("Nop logger Close should be a no-op")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
