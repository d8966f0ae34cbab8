// ABOUTME: Attribute selectors for locating nodes in a UI hierarchy
// ABOUTME: Parses the "key=value;key=value" form used in block list configuration

package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySelector indicates a selector without any attribute constraint.
var ErrEmptySelector = errors.New("selector has no attributes")

// Selector matches nodes whose attributes equal every non-empty field.
type Selector struct {
	Text         string
	TextContains string
	ResourceID   string
	Class        string
	Description  string
	Package      string
}

// IsZero reports whether no attribute is constrained.
func (s Selector) IsZero() bool {
	return s == Selector{}
}

// Match reports whether n satisfies every constraint of s.
// A zero selector matches nothing.
func (s Selector) Match(n *Node) bool {
	if n == nil || s.IsZero() {
		return false
	}
	if s.Text != "" && n.Text != s.Text {
		return false
	}
	if s.TextContains != "" && !strings.Contains(n.Text, s.TextContains) {
		return false
	}
	if s.ResourceID != "" && n.ResourceID != s.ResourceID {
		return false
	}
	if s.Class != "" && n.Class != s.Class {
		return false
	}
	if s.Description != "" && n.Description != s.Description {
		return false
	}
	if s.Package != "" && n.Package != s.Package {
		return false
	}
	return true
}

var selectorEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`)

// String renders s in the form accepted by ParseSelector. Backslashes and
// ';' inside values are escaped with a backslash.
func (s Selector) String() string {
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+selectorEscaper.Replace(value))
		}
	}
	add("text", s.Text)
	add("text-contains", s.TextContains)
	add("resource-id", s.ResourceID)
	add("class", s.Class)
	add("content-desc", s.Description)
	add("package", s.Package)
	return strings.Join(parts, ";")
}

// ParseSelector parses "key=value" pairs separated by ';'. A backslash
// escapes the next character, so values may contain "\;".
// Recognized keys: text, text-contains, resource-id, class, content-desc, package.
func ParseSelector(raw string) (Selector, error) {
	var sel Selector
	for _, part := range splitSelector(raw) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Selector{}, fmt.Errorf("selector %q: expected key=value, got %q", raw, part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "text":
			sel.Text = value
		case "text-contains", "textcontains":
			sel.TextContains = value
		case "resource-id", "resourceid", "id":
			sel.ResourceID = value
		case "class", "classname":
			sel.Class = value
		case "content-desc", "description", "desc":
			sel.Description = value
		case "package":
			sel.Package = value
		default:
			return Selector{}, fmt.Errorf("selector %q: unknown key %q", raw, key)
		}
	}
	if sel.IsZero() {
		return Selector{}, fmt.Errorf("selector %q: %w", raw, ErrEmptySelector)
	}
	return sel, nil
}

// splitSelector splits raw at unescaped ';' and resolves escapes.
func splitSelector(raw string) []string {
	var (
		parts   []string
		b       strings.Builder
		escaped bool
	)
	for _, r := range raw {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ';':
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, b.String())
}

// ParseSelectors parses every entry of raw, stopping at the first error.
func ParseSelectors(raw []string) ([]Selector, error) {
	out := make([]Selector, 0, len(raw))
	for _, r := range raw {
		sel, err := ParseSelector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}
