package job

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LogParser extracts diagnostic lines from a job's log directory.
type LogParser interface {
	Parse(logDir string) ([]string, error)
}

// DefaultLogParser returns every line of every file under the log directory
// that contains "error:" in any letter case.
type DefaultLogParser struct{}

// Parse implements LogParser.
func (DefaultLogParser) Parse(logDir string) ([]string, error) {
	var lines []string
	err := walkFiles(logDir, func(path string) error {
		return scanLines(path, func(line string) {
			if strings.Contains(strings.ToLower(line), "error:") {
				lines = append(lines, line)
			}
		})
	})
	return lines, err
}

// SlurmErrLogParser returns the last Tail lines of every *.err file, which
// is where SLURM sends each array element's stderr.
type SlurmErrLogParser struct {
	Tail int
}

// Parse implements LogParser.
func (p SlurmErrLogParser) Parse(logDir string) ([]string, error) {
	tail := p.Tail
	if tail <= 0 {
		tail = 10
	}
	var lines []string
	err := walkFiles(logDir, func(path string) error {
		if !strings.HasSuffix(path, ".err") {
			return nil
		}
		var buf []string
		if err := scanLines(path, func(line string) {
			if strings.TrimSpace(line) == "" {
				return
			}
			buf = append(buf, line)
			if len(buf) > tail {
				buf = buf[1:]
			}
		}); err != nil {
			return err
		}
		lines = append(lines, buf...)
		return nil
	})
	return lines, err
}

// walkFiles calls fn for every regular file under root in lexical order.
// A missing root yields no files.
func walkFiles(root string, fn func(path string) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			return fn(path)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func scanLines(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}
