// ABOUTME: Discovers properties from a suite and indexes them by qualified name
// ABOUTME: Reports configuration errors without aborting exploration

package property

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrNoProperties indicates discovery found nothing to schedule. Exploration
// still proceeds in pure random mode.
var ErrNoProperties = errors.New("no property has been found")

// ErrMalformed indicates a case with invalid property metadata.
var ErrMalformed = errors.New("malformed property")

// ErrDuplicate indicates two cases sharing one qualified name.
var ErrDuplicate = errors.New("duplicate property name")

// Registry indexes discovered properties. It is populated once by Discover
// and read-only afterwards.
type Registry struct {
	props  map[string]*Property
	names  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		props:  make(map[string]*Property),
		logger: logger.With("component", "registry"),
	}
}

// Discover walks suite and registers every case with at least one
// precondition. The returned error joins every configuration problem found
// (malformed metadata, duplicates, ErrNoProperties); it is never fatal and
// the mapping is valid even when err != nil.
func (r *Registry) Discover(suite *Suite) (map[string]*Property, error) {
	var errs []error
	suppressed := 0

	suite.Walk(func(c *Case) {
		if len(c.Preconditions) == 0 && len(c.errs) == 0 {
			return
		}
		name := c.QualifiedName()

		if problems := c.validate(); len(problems) > 0 {
			errs = append(errs, fmt.Errorf("%w %s: %w", ErrMalformed, name, errors.Join(problems...)))
			return
		}
		if c.Body == nil {
			errs = append(errs, fmt.Errorf("%w %s: %w", ErrMalformed, name, ErrNoBody))
			return
		}
		if _, exists := r.props[name]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicate, name))
			return
		}

		if c.SetUp != nil || c.TearDown != nil {
			suppressed++
		}

		weight := c.Weight
		if weight == 0 {
			weight = DefaultWeight
		}
		preconds := make([]Precondition, len(c.Preconditions))
		copy(preconds, c.Preconditions)

		r.props[name] = &Property{
			Name:          name,
			Preconditions: preconds,
			Weight:        weight,
			MaxTries:      c.MaxTries,
			Body:          c.Body,
		}
	})

	r.names = r.names[:0]
	for name := range r.props {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	if len(r.props) == 0 {
		errs = append(errs, ErrNoProperties)
	}

	r.logger.Info("=== PROPERTIES DISCOVERED ===",
		"count", len(r.props),
		"hooks_suppressed", suppressed,
		"problems", len(errs),
	)
	for _, name := range r.names {
		p := r.props[name]
		r.logger.Debug("property registered",
			"name", name,
			"preconditions", len(p.Preconditions),
			"weight", p.Weight,
			"max_tries", p.MaxTries,
		)
	}

	out := make(map[string]*Property, len(r.props))
	for name, p := range r.props {
		out[name] = p
	}
	return out, errors.Join(errs...)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Properties returns the registered properties sorted by name.
func (r *Registry) Properties() []*Property {
	out := make([]*Property, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.props[name])
	}
	return out
}

// Len returns the number of registered properties.
func (r *Registry) Len() int {
	return len(r.props)
}
