package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultLogParser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.out"), "ok\nError: disk quota exceeded\n")
	writeFile(t, filepath.Join(dir, "nested", "b.err"), "fatal error: bad input\nno problem\nerrors: 0\n")

	lines, err := DefaultLogParser{}.Parse(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Error: disk quota exceeded", "fatal error: bad input"}, lines)
}

func TestDefaultLogParser_MissingDir(t *testing.T) {
	lines, err := DefaultLogParser{}.Parse(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSlurmErrLogParser(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "job_1.err"), "one\ntwo\n\nthree\n")
	writeFile(t, filepath.Join(dir, "job_1.out"), "ignored\n")

	lines, err := SlurmErrLogParser{Tail: 2}.Parse(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, lines)
}
