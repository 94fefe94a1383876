// Package array folds a command list into scheduler array slots.
package array

import (
	"sort"
	"strings"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

// Separator joins the commands that share one array slot.
const Separator = ";"

// Chunk distributes commands over at most maxLen array slots.
//
// The commands are sorted, cut into consecutive groups of maxLen, and slot i
// receives the i-th command of every group joined with Separator. The result
// has min(len(commands), maxLen) entries and contains every command exactly
// once. The input slice is not modified.
func Chunk(commands []string, maxLen int) ([]string, error) {
	if maxLen <= 0 {
		return nil, errs.Configf("max array length must be positive, got %d", maxLen)
	}
	if len(commands) == 0 {
		return []string{}, nil
	}

	sorted := make([]string, len(commands))
	copy(sorted, commands)
	sort.Strings(sorted)

	slots := make([][]string, min(len(sorted), maxLen))
	for i, cmd := range sorted {
		slot := i % maxLen
		slots[slot] = append(slots[slot], cmd)
	}

	out := make([]string, len(slots))
	for i, parts := range slots {
		out[i] = strings.Join(parts, Separator)
	}
	return out, nil
}

// SlotCount is the number of array slots Chunk produces for n commands.
func SlotCount(n, maxLen int) int {
	if n <= 0 || maxLen <= 0 {
		return 0
	}
	return min(n, maxLen)
}
