package job

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

// DefaultQuarantinePatterns match the directories where empty or rejected
// outputs are parked.
var DefaultQuarantinePatterns = []string{"**/zero_files"}

// Audit compares the ids found in output file names against expectedIDs and
// returns the sorted symmetric difference.
//
// A file counts when its name ends in the configured OutputSuffix. It is
// attributed to the longest expected id E for which the name starts with
// "E_"; otherwise its id is the part of the name before the first "_".
// The result therefore mixes missing ids with unexpected ones.
func (j *Job) Audit(expectedIDs []string) ([]string, error) {
	return AuditDir(j.outputPath, j.cfg.OutputSuffix, j.cfg.QuarantinePatterns, expectedIDs)
}

// AuditDir is Audit for an arbitrary output tree. Nil patterns mean
// DefaultQuarantinePatterns.
func AuditDir(root, suffix string, patterns, expectedIDs []string) ([]string, error) {
	if suffix == "" {
		return nil, errs.Configf("audit needs an output suffix")
	}
	if patterns == nil {
		patterns = DefaultQuarantinePatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errs.Configf("invalid quarantine pattern %q", p)
		}
	}

	found, err := scanOutputIDs(root, suffix, patterns, expectedIDs)
	if err != nil {
		return nil, err
	}
	return symmetricDifference(found, expectedIDs), nil
}

func scanOutputIDs(root, suffix string, quarantine, expected []string) (map[string]struct{}, error) {
	// Longest first so "S10" wins over "S1" for "S10_L001.fastq.gz".
	byLength := append([]string(nil), expected...)
	sort.Slice(byLength, func(a, b int) bool { return len(byLength[a]) > len(byLength[b]) })

	found := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil || rel == "." {
				return nil
			}
			if quarantined(filepath.ToSlash(rel), quarantine) {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !strings.HasSuffix(name, suffix) {
			return nil
		}
		found[attribute(name, byLength)] = struct{}{}
		return nil
	})
	return found, err
}

func quarantined(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func attribute(name string, expected []string) string {
	for _, id := range expected {
		if strings.HasPrefix(name, id+"_") {
			return id
		}
	}
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return name
}

func symmetricDifference(found map[string]struct{}, expected []string) []string {
	want := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}
	}

	out := []string{}
	for id := range found {
		if _, ok := want[id]; !ok {
			out = append(out, id)
		}
	}
	for id := range want {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
