// ABOUTME: Tests for merging result files across exploration runs
// ABOUTME: Verifies counter summation and error reporting

package result

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_SumsCounters(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "result_1.json")
	second := filepath.Join(dir, "result_2.json")

	require.NoError(t, Write(first, map[string]Counters{
		"shared": {PrecondSatisfied: 3, Executed: 2, Fail: 1},
		"only_a": {Executed: 1},
	}))
	require.NoError(t, Write(second, map[string]Counters{
		"shared": {PrecondSatisfied: 4, Executed: 1, Error: 1},
		"only_b": {PrecondSatisfied: 2},
	}))

	merged, err := Merge(first, second)
	require.NoError(t, err)

	assert.Equal(t, Counters{PrecondSatisfied: 7, Executed: 3, Fail: 1, Error: 1}, merged["shared"])
	assert.Equal(t, Counters{Executed: 1}, merged["only_a"])
	assert.Equal(t, Counters{PrecondSatisfied: 2}, merged["only_b"])
}

func TestMerge_NoInputs(t *testing.T) {
	_, err := Merge()
	assert.ErrorIs(t, err, ErrNothingToMerge)
}

func TestMerge_MissingFile(t *testing.T) {
	_, err := Merge(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
