// ABOUTME: System pack: oracles for Android ANR and crash dialogs
// ABOUTME: Both run on read-only snapshots and fail with the dialog text

package builtins

import (
	"context"
	"strings"

	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/property"
)

// SystemPackID identifies the system pack.
const SystemPackID = "builtin:system"

var (
	anrMarkers   = []string{"isn't responding", "is not responding"}
	crashMarkers = []string{"has stopped", "keeps stopping", "Unfortunately,"}
)

// SystemPack returns the ANR and crash dialog oracles.
func SystemPack() *property.Suite {
	return property.NewSuite("system",
		property.NewCase(Module, "System", "anr_dialog",
			dialogBody("application not responding", anrMarkers),
			property.WithPrecondition(anyText(anrMarkers)),
		),
		property.NewCase(Module, "System", "crash_dialog",
			dialogBody("application crashed", crashMarkers),
			property.WithPrecondition(anyText(crashMarkers)),
		),
	)
}

// anyText holds when some node's text contains one of markers.
func anyText(markers []string) property.Precondition {
	return func(c driver.Checker) (bool, error) {
		for _, m := range markers {
			if c.Exists(driver.Selector{TextContains: m}) {
				return true, nil
			}
		}
		return false, nil
	}
}

// dialogBody re-reads the screen and fails with the matching dialog text.
func dialogBody(what string, markers []string) property.Body {
	return func(ctx context.Context, d driver.Device) error {
		h, err := d.Hierarchy(ctx)
		if err != nil {
			return err
		}
		if text := findText(h, markers); text != "" {
			return property.Failf("%s: %q", what, text)
		}
		return nil
	}
}

func findText(h *driver.Hierarchy, markers []string) string {
	var found string
	h.Walk(func(n *driver.Node) bool {
		for _, m := range markers {
			if strings.Contains(n.Text, m) {
				found = n.Text
				return false
			}
		}
		return true
	})
	return found
}
