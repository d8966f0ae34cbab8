// ABOUTME: Result file persistence: atomic whole-table rewrite and reload
// ABOUTME: Readers of the result file never observe a partially written table

package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoPath indicates Flush was called on an aggregator without a result path.
var ErrNoPath = errors.New("result path not set")

// Flush rewrites the result file with the current table.
func (a *Aggregator) Flush() error {
	if a.path == "" {
		return ErrNoPath
	}
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	return writeFileAtomic(a.path, data)
}

// Write persists an arbitrary counters table to path.
func Write(path string, table map[string]Counters) error {
	data, err := Encode(table)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// Load reads a result file written by Flush or Write.
func Load(path string) (map[string]Counters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	table := make(map[string]Counters)
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing result file %s: %w", path, err)
	}
	return table, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating result directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp result file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp result file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp result file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting result file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing result file: %w", err)
	}
	return nil
}
