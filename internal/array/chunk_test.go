package array

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocore-hpc/seqjob/internal/errs"
)

func TestChunk_InterleavesGroups(t *testing.T) {
	cmds := []string{"7", "3", "1", "5", "2", "6", "4"}

	got, err := Chunk(cmds, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1;3;5;7", "2;4;6"}, got)
	assert.Equal(t, []string{"7", "3", "1", "5", "2", "6", "4"}, cmds, "input must not be reordered")
}

func TestChunk_FewerCommandsThanSlots(t *testing.T) {
	got, err := Chunk([]string{"b", "a"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestChunk_Empty(t *testing.T) {
	got, err := Chunk(nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChunk_InvalidMaxLen(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Chunk([]string{"a"}, n)
		require.Error(t, err)
		var cfgErr *errs.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr), "maxLen=%d", n)
	}
}

func TestChunk_BoundAndCoverage(t *testing.T) {
	tests := []struct {
		n, maxLen int
	}{
		{1, 1},
		{10, 3},
		{100, 7},
		{1000, 1000},
		{2500, 1000},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,L=%d", tt.n, tt.maxLen), func(t *testing.T) {
			cmds := make([]string, tt.n)
			for i := range cmds {
				cmds[i] = fmt.Sprintf("cmd%05d", i)
			}

			got, err := Chunk(cmds, tt.maxLen)
			require.NoError(t, err)
			assert.Len(t, got, SlotCount(tt.n, tt.maxLen))

			var flat []string
			for _, slot := range got {
				flat = append(flat, strings.Split(slot, Separator)...)
			}
			sort.Strings(flat)
			assert.Equal(t, cmds, flat)
		})
	}
}
