// ABOUTME: Driver collaborator contract: static checkers, live devices, block lists
// ABOUTME: HierarchyDriver implements it over agent-supplied XML snapshots

package driver

import (
	"context"
	"errors"
	"sync"
)

// ErrNoDevice indicates the driver has no way to create a live device.
var ErrNoDevice = errors.New("no interactive device configured")

// ActionKind names a single UI interaction.
type ActionKind string

// Supported interactions.
const (
	ActionClick     ActionKind = "click"
	ActionLongClick ActionKind = "long_click"
	ActionSetText   ActionKind = "set_text"
	ActionSwipe     ActionKind = "swipe"
	ActionPress     ActionKind = "press"
	ActionRotate    ActionKind = "rotate"
)

// Action is one interaction a property asks its Device to perform.
type Action struct {
	Kind   ActionKind
	Target Selector
	// Value carries the text to type, the key to press, the swipe
	// direction or the orientation, depending on Kind.
	Value string
}

// Device is a live, interactive handle bound to a property for one execution.
type Device interface {
	// Hierarchy fetches the current UI from the device.
	Hierarchy(ctx context.Context) (*Hierarchy, error)
	// Perform executes one interaction.
	Perform(ctx context.Context, action Action) error
}

// BlockLists are sent with every step request. The agent never interacts
// with listed widgets nor with anything inside listed trees.
type BlockLists struct {
	Widgets []string `json:"block_widgets"`
	Trees   []string `json:"block_trees"`
}

// Driver supplies the UI collaborators the scheduler needs.
type Driver interface {
	// StaticChecker returns a read-only checker bound to snap.
	StaticChecker(snap Snapshot) (Checker, error)
	// ScriptDriver returns a fresh live device. Callers must not reuse a
	// device across executions.
	ScriptDriver(ctx context.Context) (Device, error)
	// BlockLists computes the current blocked widgets and trees.
	BlockLists(ctx context.Context) (BlockLists, error)
}

// DeviceFactory creates a live device.
type DeviceFactory func(ctx context.Context) (Device, error)

// HierarchyDriver evaluates preconditions on the agent's XML snapshots and
// delegates live interaction to a DeviceFactory.
type HierarchyDriver struct {
	newDevice DeviceFactory
	widgets   []Selector
	trees     []Selector

	mu   sync.Mutex
	last *Hierarchy
}

// NewHierarchyDriver creates a driver. newDevice may be nil, in which case
// ScriptDriver returns ErrNoDevice.
func NewHierarchyDriver(newDevice DeviceFactory, blockWidgets, blockTrees []Selector) *HierarchyDriver {
	return &HierarchyDriver{
		newDevice: newDevice,
		widgets:   blockWidgets,
		trees:     blockTrees,
	}
}

// NewSnapshotDriver creates a driver whose devices are read-only views of
// the most recent snapshot. Properties can inspect the screen they were
// selected on but any Perform fails with ErrReadOnly.
func NewSnapshotDriver(blockWidgets, blockTrees []Selector) *HierarchyDriver {
	d := NewHierarchyDriver(nil, blockWidgets, blockTrees)
	d.newDevice = d.snapshotDevice
	return d
}

// StaticChecker parses snap into a StaticChecker.
func (d *HierarchyDriver) StaticChecker(snap Snapshot) (Checker, error) {
	c, err := NewStaticChecker(snap)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.last = c.hierarchy
	d.mu.Unlock()
	return c, nil
}

func (d *HierarchyDriver) snapshotDevice(ctx context.Context) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil, ErrNoDevice
	}
	return &SnapshotDevice{hierarchy: d.last}, nil
}

// ScriptDriver creates a new live device through the factory.
func (d *HierarchyDriver) ScriptDriver(ctx context.Context) (Device, error) {
	if d.newDevice == nil {
		return nil, ErrNoDevice
	}
	return d.newDevice(ctx)
}

// BlockLists returns the configured global block selectors.
func (d *HierarchyDriver) BlockLists(ctx context.Context) (BlockLists, error) {
	lists := BlockLists{
		Widgets: make([]string, 0, len(d.widgets)),
		Trees:   make([]string, 0, len(d.trees)),
	}
	for _, w := range d.widgets {
		lists.Widgets = append(lists.Widgets, w.String())
	}
	for _, t := range d.trees {
		lists.Trees = append(lists.Trees, t.String())
	}
	return lists, nil
}
