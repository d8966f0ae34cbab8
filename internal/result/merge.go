// ABOUTME: Merges result files from several exploration runs into one table
// ABOUTME: Counters of properties present in more than one file are summed

package result

import (
	"errors"
	"fmt"
)

// ErrNothingToMerge indicates Merge was called without any input files.
var ErrNothingToMerge = errors.New("no result files to merge")

// Merge loads every path and sums the counters per property name.
func Merge(paths ...string) (map[string]Counters, error) {
	if len(paths) == 0 {
		return nil, ErrNothingToMerge
	}

	merged := make(map[string]Counters)
	for _, path := range paths {
		table, err := Load(path)
		if err != nil {
			return nil, fmt.Errorf("merging %s: %w", path, err)
		}
		for name, c := range table {
			merged[name] = merged[name].Add(c)
		}
	}
	return merged, nil
}
