// Package property models precondition-gated checks ("properties") and
// discovers them from a hierarchical suite of test cases.
//
// A Case is written once by the test author:
//
//	property.NewCase("notes", "Settings", "test_goToPrivacy",
//	    func(ctx context.Context, d driver.Device) error {
//	        if err := d.Perform(ctx, driver.Action{Kind: driver.ActionClick, Target: driver.Selector{Text: "Settings"}}); err != nil {
//	            return err
//	        }
//	        return property.Assert(..., "privacy screen not shown")
//	    },
//	    property.WithPrecondition(func(c driver.Checker) (bool, error) {
//	        return c.Exists(driver.Selector{Text: "Settings"}), nil
//	    }),
//	    property.WithProbability(0.7),
//	    property.WithMaxTries(3),
//	)
//
// Registry.Discover walks a Suite and turns every case carrying at least one
// precondition into an immutable Property. Cases without preconditions are
// ordinary setup/teardown helpers and are skipped. Per-case SetUp/TearDown
// hooks are never carried over: a property drives its own UI transitions and
// must not be reset between its precondition check and its invocation.
//
// Bodies signal an assertion failure by returning an error built with
// Assert or Failf; any other error, and any panic, counts as an error.
package property
