// ABOUTME: Hierarchical test suite of candidate cases with attached metadata
// ABOUTME: Functional options stand in for precondition/probability/max-tries markers

package property

import (
	"context"
	"fmt"
	"strings"
)

// Hook is a per-case setup or teardown function.
type Hook func(ctx context.Context) error

// Case is a candidate check inside a Suite.
type Case struct {
	Module string
	Class  string
	Method string

	Preconditions []Precondition
	// Weight is the probability weight; 0 means DefaultWeight.
	Weight   float64
	MaxTries int
	Body     Body

	SetUp    Hook
	TearDown Hook

	// errs collects invalid option values for reporting at registration.
	errs []error
}

// Option configures a Case.
type Option func(*Case)

// NewCase builds a case identified by module, class and method.
func NewCase(module, class, method string, body Body, opts ...Option) *Case {
	c := &Case{
		Module: module,
		Class:  class,
		Method: method,
		Body:   body,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPrecondition appends a precondition. Preconditions are evaluated in
// the order they were added.
func WithPrecondition(pre Precondition) Option {
	return func(c *Case) {
		if pre == nil {
			c.errs = append(c.errs, fmt.Errorf("nil precondition"))
			return
		}
		c.Preconditions = append(c.Preconditions, pre)
	}
}

// WithProbability sets the probability weight, which must lie in (0, 1].
func WithProbability(p float64) Option {
	return func(c *Case) {
		if !(p > 0 && p <= 1) {
			c.errs = append(c.errs, fmt.Errorf("probability %v outside (0, 1]", p))
			return
		}
		c.Weight = p
	}
}

// WithMaxTries caps lifetime executions; n must be positive.
func WithMaxTries(n int) Option {
	return func(c *Case) {
		if n <= 0 {
			c.errs = append(c.errs, fmt.Errorf("max tries %d must be positive", n))
			return
		}
		c.MaxTries = n
	}
}

// WithSetUp attaches a per-case setup hook.
func WithSetUp(h Hook) Option {
	return func(c *Case) { c.SetUp = h }
}

// WithTearDown attaches a per-case teardown hook.
func WithTearDown(h Hook) Option {
	return func(c *Case) { c.TearDown = h }
}

// validate returns the option errors plus any invalid metadata set directly
// on the struct fields.
func (c *Case) validate() []error {
	problems := append([]error(nil), c.errs...)
	for i, pre := range c.Preconditions {
		if pre == nil {
			problems = append(problems, fmt.Errorf("precondition %d is nil", i))
		}
	}
	if c.Weight != 0 && !(c.Weight > 0 && c.Weight <= 1) {
		problems = append(problems, fmt.Errorf("probability %v outside (0, 1]", c.Weight))
	}
	if c.MaxTries < 0 {
		problems = append(problems, fmt.Errorf("max tries %d must be positive", c.MaxTries))
	}
	return problems
}

// QualifiedName joins the non-empty module, class and method with dots.
func (c *Case) QualifiedName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Module, c.Class, c.Method} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Suite is a tree of cases.
type Suite struct {
	Name   string
	Cases  []*Case
	Suites []*Suite
}

// NewSuite creates a named suite holding cases.
func NewSuite(name string, cases ...*Case) *Suite {
	return &Suite{Name: name, Cases: cases}
}

// Add appends cases and returns s for chaining.
func (s *Suite) Add(cases ...*Case) *Suite {
	s.Cases = append(s.Cases, cases...)
	return s
}

// AddSuite nests children under s and returns s for chaining.
func (s *Suite) AddSuite(children ...*Suite) *Suite {
	s.Suites = append(s.Suites, children...)
	return s
}

// Walk visits every case depth-first, own cases before nested suites.
func (s *Suite) Walk(fn func(*Case)) {
	if s == nil {
		return
	}
	for _, c := range s.Cases {
		if c != nil {
			fn(c)
		}
	}
	for _, child := range s.Suites {
		child.Walk(fn)
	}
}
