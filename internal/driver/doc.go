// Package driver defines the UI driver collaborator used by the exploration
// scheduler and a hierarchy-backed implementation of its read-only half.
//
// Three things are supplied by a Driver:
//
//   - a read-only Checker bound to one step's Snapshot, used to evaluate
//     preconditions (it has no methods that touch the device)
//   - a live Device handed to a property for a single execution
//   - the block lists (widgets and subtrees the agent must not interact
//     with) sent along with every step request
//
// HierarchyDriver parses the uiautomator-style XML dump returned by the
// exploration agent:
//
//	<hierarchy rotation="0">
//	  <node text="Settings" resource-id="com.app:id/title"
//	        class="android.widget.TextView" clickable="true" .../>
//	</hierarchy>
//
// How a Device performs an Action is left to the automation transport.
package driver
