// ABOUTME: Parses uiautomator-style XML hierarchies into a node tree
// ABOUTME: Provides the read-only StaticChecker used for precondition evaluation

package driver

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyHierarchy indicates a snapshot without any hierarchy content.
var ErrEmptyHierarchy = errors.New("empty hierarchy")

// Snapshot is the UI state returned by the exploration agent for one step.
type Snapshot struct {
	Step      int
	Hierarchy string
}

// Node is one element of a UI hierarchy.
type Node struct {
	Index       string
	Text        string
	ResourceID  string
	Class       string
	Package     string
	Description string
	Bounds      string
	Clickable   bool
	Enabled     bool
	Checked     bool
	Focused     bool
	Scrollable  bool
	Selected    bool
	Children    []*Node
}

// Hierarchy is a parsed UI dump.
type Hierarchy struct {
	Rotation string
	Roots    []*Node
}

type xmlNode struct {
	Index       string    `xml:"index,attr"`
	Text        string    `xml:"text,attr"`
	ResourceID  string    `xml:"resource-id,attr"`
	Class       string    `xml:"class,attr"`
	Package     string    `xml:"package,attr"`
	Description string    `xml:"content-desc,attr"`
	Bounds      string    `xml:"bounds,attr"`
	Clickable   string    `xml:"clickable,attr"`
	Enabled     string    `xml:"enabled,attr"`
	Checked     string    `xml:"checked,attr"`
	Focused     string    `xml:"focused,attr"`
	Scrollable  string    `xml:"scrollable,attr"`
	Selected    string    `xml:"selected,attr"`
	Nodes       []xmlNode `xml:"node"`
}

type xmlHierarchy struct {
	XMLName  xml.Name  `xml:"hierarchy"`
	Rotation string    `xml:"rotation,attr"`
	Nodes    []xmlNode `xml:"node"`
}

// ParseHierarchy decodes a raw XML dump.
func ParseHierarchy(raw string) (*Hierarchy, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyHierarchy
	}

	var doc xmlHierarchy
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parsing hierarchy: %w", err)
	}

	h := &Hierarchy{Rotation: doc.Rotation}
	for i := range doc.Nodes {
		h.Roots = append(h.Roots, convertNode(&doc.Nodes[i]))
	}
	return h, nil
}

func convertNode(x *xmlNode) *Node {
	n := &Node{
		Index:       x.Index,
		Text:        x.Text,
		ResourceID:  x.ResourceID,
		Class:       x.Class,
		Package:     x.Package,
		Description: x.Description,
		Bounds:      x.Bounds,
		Clickable:   x.Clickable == "true",
		Enabled:     x.Enabled == "true",
		Checked:     x.Checked == "true",
		Focused:     x.Focused == "true",
		Scrollable:  x.Scrollable == "true",
		Selected:    x.Selected == "true",
	}
	for i := range x.Nodes {
		n.Children = append(n.Children, convertNode(&x.Nodes[i]))
	}
	return n
}

// Walk visits every node depth-first until fn returns false.
func (h *Hierarchy) Walk(fn func(*Node) bool) {
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, c := range n.Children {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, root := range h.Roots {
		if !visit(root) {
			return
		}
	}
}

// Checker is a read-only view of a UI snapshot.
type Checker interface {
	Exists(sel Selector) bool
	Find(sel Selector) []*Node
	Count(sel Selector) int
}

// StaticChecker answers queries against one parsed snapshot.
type StaticChecker struct {
	step      int
	hierarchy *Hierarchy
}

// NewStaticChecker parses snap and returns a checker bound to it.
func NewStaticChecker(snap Snapshot) (*StaticChecker, error) {
	h, err := ParseHierarchy(snap.Hierarchy)
	if err != nil {
		return nil, err
	}
	return &StaticChecker{step: snap.Step, hierarchy: h}, nil
}

// Step is the exploration step the snapshot belongs to.
func (c *StaticChecker) Step() int {
	return c.step
}

// Find returns every node matching sel in document order.
func (c *StaticChecker) Find(sel Selector) []*Node {
	var out []*Node
	c.hierarchy.Walk(func(n *Node) bool {
		if sel.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Exists reports whether at least one node matches sel.
func (c *StaticChecker) Exists(sel Selector) bool {
	found := false
	c.hierarchy.Walk(func(n *Node) bool {
		if sel.Match(n) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Count returns the number of nodes matching sel.
func (c *StaticChecker) Count(sel Selector) int {
	return len(c.Find(sel))
}
