// ABOUTME: In-memory per-property counters owned by the exploration scheduler
// ABOUTME: Single-writer table with increment accessors and JSON snapshotting

package result

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Counters are the execution statistics of a single property.
type Counters struct {
	PrecondSatisfied int `json:"precond_satisfied"`
	Executed         int `json:"executed"`
	Fail             int `json:"fail"`
	Error            int `json:"error"`
}

// Add returns the field-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		PrecondSatisfied: c.PrecondSatisfied + o.PrecondSatisfied,
		Executed:         c.Executed + o.Executed,
		Fail:             c.Fail + o.Fail,
		Error:            c.Error + o.Error,
	}
}

// Passed is the number of executions that neither failed nor errored.
func (c Counters) Passed() int {
	return c.Executed - c.Fail - c.Error
}

// Aggregator maps property names to their counters.
// It is not safe for concurrent mutation; see the package docs.
type Aggregator struct {
	path     string
	counters map[string]*Counters
}

// NewAggregator creates an aggregator persisting to path with zeroed
// counters for every name.
func NewAggregator(path string, names ...string) *Aggregator {
	a := &Aggregator{
		path:     path,
		counters: make(map[string]*Counters, len(names)),
	}
	for _, name := range names {
		a.Register(name)
	}
	return a
}

// Register adds a zeroed entry for name. Existing entries are left untouched.
func (a *Aggregator) Register(name string) {
	if _, ok := a.counters[name]; !ok {
		a.counters[name] = &Counters{}
	}
}

// Path returns the result file location.
func (a *Aggregator) Path() string {
	return a.path
}

func (a *Aggregator) entry(name string) *Counters {
	c, ok := a.counters[name]
	if !ok {
		c = &Counters{}
		a.counters[name] = c
	}
	return c
}

// AddPrecondSatisfied records that all preconditions of name held this round.
func (a *Aggregator) AddPrecondSatisfied(name string) {
	a.entry(name).PrecondSatisfied++
}

// AddExecuted records that name's body was invoked.
func (a *Aggregator) AddExecuted(name string) {
	a.entry(name).Executed++
}

// AddFail records an assertion failure for name.
func (a *Aggregator) AddFail(name string) {
	a.entry(name).Fail++
}

// AddError records an unexpected failure for name.
func (a *Aggregator) AddError(name string) {
	a.entry(name).Error++
}

// Get returns a copy of the counters for name (zero if unknown).
func (a *Aggregator) Get(name string) Counters {
	if c, ok := a.counters[name]; ok {
		return *c
	}
	return Counters{}
}

// Names returns the registered property names in sorted order.
func (a *Aggregator) Names() []string {
	names := make([]string, 0, len(a.counters))
	for name := range a.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the whole table.
func (a *Aggregator) Snapshot() map[string]Counters {
	out := make(map[string]Counters, len(a.counters))
	for name, c := range a.counters {
		out[name] = *c
	}
	return out
}

// Totals sums the counters of every property.
func (a *Aggregator) Totals() Counters {
	var total Counters
	for _, c := range a.counters {
		total = total.Add(*c)
	}
	return total
}

// Marshal renders the table as indented JSON with sorted keys.
func (a *Aggregator) Marshal() ([]byte, error) {
	return Encode(a.Snapshot())
}

// Encode renders a counters table the same way Aggregator.Marshal does.
func Encode(table map[string]Counters) ([]byte, error) {
	if table == nil {
		table = map[string]Counters{}
	}
	data, err := json.MarshalIndent(table, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding result table: %w", err)
	}
	return append(data, '\n'), nil
}
