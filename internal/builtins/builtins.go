// ABOUTME: Registry of built-in property packs addressed by pack ID
// ABOUTME: Suite composes the requested packs into one property suite

package builtins

import (
	"errors"
	"fmt"
	"sort"

	"github.com/2389/coven-explore/internal/property"
)

// ErrUnknownPack is returned for a pack ID that is not registered.
var ErrUnknownPack = errors.New("unknown builtin pack")

// ErrLiveDevice is returned when a pack that performs interactions is
// requested without a live device.
var ErrLiveDevice = errors.New("pack requires a live device")

// Module is the module name of every built-in property.
const Module = "builtin"

// Pack is a named group of built-in properties.
type Pack struct {
	ID          string
	Description string
	// LiveDevice is set when the pack's properties perform interactions.
	LiveDevice bool
	Suite      func() *property.Suite
}

var packs = map[string]*Pack{
	SystemPackID: {
		ID:          SystemPackID,
		Description: "fail on ANR and crash dialogs",
		Suite:       SystemPack,
	},
	PermissionsPackID: {
		ID:          PermissionsPackID,
		Description: "grant runtime permission prompts",
		LiveDevice:  true,
		Suite:       PermissionsPack,
	},
}

// Packs lists the registered packs by ID.
func Packs() []*Pack {
	out := make([]*Pack, 0, len(packs))
	for _, p := range packs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Suite composes the packs named by ids. Duplicate IDs are included once.
func Suite(ids ...string) (*property.Suite, error) {
	root := property.NewSuite(Module)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := packs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPack, id)
		}
		root.AddSuite(p.Suite())
	}
	return root, nil
}

// CheckDevice rejects packs that need a live device when live is false.
// Unknown IDs are left for Suite to report.
func CheckDevice(live bool, ids ...string) error {
	if live {
		return nil
	}
	for _, id := range ids {
		if p, ok := packs[id]; ok && p.LiveDevice {
			return fmt.Errorf("%w: %s", ErrLiveDevice, id)
		}
	}
	return nil
}
