// ABOUTME: Permissions pack: grants runtime permission prompts on a live device
// ABOUTME: Checks the prompt is dismissed after tapping Allow

package builtins

import (
	"context"
	"fmt"

	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/property"
)

// PermissionsPackID identifies the permissions pack.
const PermissionsPackID = "builtin:permissions"

// Allow buttons of the platform permission controller, newest first.
var allowButtons = []driver.Selector{
	{ResourceID: "com.android.permissioncontroller:id/permission_allow_button"},
	{ResourceID: "com.android.permissioncontroller:id/permission_allow_foreground_only_button"},
	{ResourceID: "com.android.packageinstaller:id/permission_allow_button"},
}

// PermissionsPack returns the permission prompt property.
func PermissionsPack() *property.Suite {
	return property.NewSuite("permissions",
		property.NewCase(Module, "Permissions", "grant_runtime_permission",
			grantPermission,
			property.WithPrecondition(func(c driver.Checker) (bool, error) {
				_, ok := firstPresent(c.Exists)
				return ok, nil
			}),
			property.WithProbability(0.8),
		),
	)
}

func grantPermission(ctx context.Context, d driver.Device) error {
	h, err := d.Hierarchy(ctx)
	if err != nil {
		return err
	}
	button, ok := firstPresent(func(s driver.Selector) bool { return contains(h, s) })
	if !ok {
		// The prompt went away between the step and this execution.
		return nil
	}
	if err := d.Perform(ctx, driver.Action{Kind: driver.ActionClick, Target: button}); err != nil {
		return fmt.Errorf("tap allow: %w", err)
	}

	after, err := d.Hierarchy(ctx)
	if err != nil {
		return err
	}
	return property.Assert(!contains(after, button), "permission prompt still showing after tapping %s", button)
}

func firstPresent(exists func(driver.Selector) bool) (driver.Selector, bool) {
	for _, s := range allowButtons {
		if exists(s) {
			return s, true
		}
	}
	return driver.Selector{}, false
}

func contains(h *driver.Hierarchy, sel driver.Selector) bool {
	found := false
	h.Walk(func(n *driver.Node) bool {
		found = sel.Match(n)
		return !found
	})
	return found
}
