// ABOUTME: SnapshotDevice is a read-only Device over one parsed hierarchy
// ABOUTME: Lets oracle properties inspect the screen without a UI transport

package driver

import (
	"context"
	"errors"
	"fmt"
)

// ErrReadOnly is returned by SnapshotDevice.Perform.
var ErrReadOnly = errors.New("device is a read-only snapshot")

// SnapshotDevice serves a fixed hierarchy.
type SnapshotDevice struct {
	hierarchy *Hierarchy
}

// NewSnapshotDevice parses raw and wraps it.
func NewSnapshotDevice(raw string) (*SnapshotDevice, error) {
	h, err := ParseHierarchy(raw)
	if err != nil {
		return nil, err
	}
	return &SnapshotDevice{hierarchy: h}, nil
}

// Hierarchy returns the snapshot.
func (d *SnapshotDevice) Hierarchy(ctx context.Context) (*Hierarchy, error) {
	return d.hierarchy, nil
}

// Perform always fails.
func (d *SnapshotDevice) Perform(ctx context.Context, action Action) error {
	return fmt.Errorf("%s: %w", action.Kind, ErrReadOnly)
}
