// ABOUTME: Property descriptor: qualified name, ordered preconditions, weight, max tries
// ABOUTME: Evaluates preconditions and invokes bodies with panic containment

package property

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coven-explore/internal/driver"
)

// DefaultWeight is the probability weight of a property without WithProbability.
const DefaultWeight = 1.0

// Precondition is a predicate over a read-only view of the current snapshot.
type Precondition func(c driver.Checker) (bool, error)

// Body is the executable part of a property.
type Body func(ctx context.Context, d driver.Device) error

// Property is a registered, immutable check.
type Property struct {
	Name          string
	Preconditions []Precondition
	Weight        float64
	// MaxTries caps lifetime executions; 0 means unbounded.
	MaxTries int
	Body     Body
}

// Exhausted reports whether executed has reached MaxTries.
func (p *Property) Exhausted(executed int) bool {
	return p.MaxTries > 0 && executed >= p.MaxTries
}

// Eligible evaluates the preconditions in order against c, stopping at the
// first one that is false or fails. A failing or panicking predicate yields
// (false, err).
func (p *Property) Eligible(c driver.Checker) (bool, error) {
	for i, pre := range p.Preconditions {
		ok, err := callPrecondition(pre, c)
		if err != nil {
			return false, fmt.Errorf("precondition %d of %s: %w", i, p.Name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func callPrecondition(pre Precondition, c driver.Checker) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &PanicError{Value: r}
		}
	}()
	return pre(c)
}

// Run invokes the body with d. A panic is returned as *PanicError.
func (p *Property) Run(ctx context.Context, d driver.Device) (err error) {
	if p.Body == nil {
		return ErrNoBody
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return p.Body(ctx, d)
}

// ErrNoBody indicates a property without an executable body.
var ErrNoBody = errors.New("property has no body")

// PanicError wraps a value recovered from a panicking predicate or body.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// AssertionError marks a property failure, as opposed to an unexpected error.
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Msg
}

// Failf returns an assertion failure with a formatted message.
func Failf(format string, args ...any) error {
	return &AssertionError{Msg: fmt.Sprintf(format, args...)}
}

// Assert returns nil when cond holds and an assertion failure otherwise.
func Assert(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return Failf(format, args...)
}

// IsAssertion reports whether err is, or wraps, an assertion failure.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
