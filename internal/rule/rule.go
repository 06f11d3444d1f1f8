// Package rule holds the incremental rule-change data produced by project
// evaluation and design-time builds.
package rule

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Properties is the property bag of one rule item.
type Properties map[string]string

// Get returns the named property. An exact match is tried first, then a
// case-insensitive one.
func (p Properties) Get(name string) string {
	if v, ok := p[name]; ok {
		return v
	}
	for k, v := range p {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// GetBool parses the named property as a boolean, returning def when the
// property is absent or unparseable.
func (p Properties) GetBool(name string, def bool) bool {
	v := strings.TrimSpace(p.Get(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Snapshot is the full item state of one rule: item spec -> properties.
type Snapshot map[string]Properties

// Contains reports whether itemSpec is present, compared case-insensitively.
func (s Snapshot) Contains(itemSpec string) bool {
	_, ok := s.Lookup(itemSpec)
	return ok
}

// Lookup returns the properties of itemSpec, compared case-insensitively.
func (s Snapshot) Lookup(itemSpec string) (Properties, bool) {
	if p, ok := s[itemSpec]; ok {
		return p, true
	}
	for k, p := range s {
		if strings.EqualFold(k, itemSpec) {
			return p, true
		}
	}
	return nil, false
}

// Difference lists the item specs that changed between two rule snapshots.
type Difference struct {
	Added   []string `json:"added,omitempty" yaml:"added,omitempty"`
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
	Changed []string `json:"changed,omitempty" yaml:"changed,omitempty"`
}

// AnyChanges reports whether the difference is non-empty.
func (d Difference) AnyChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// Change is the update of a single rule: the previous and current item
// state plus the difference between them. After is the complete current
// state, not only the changed items.
type Change struct {
	Before     Snapshot   `json:"before,omitempty" yaml:"before,omitempty"`
	After      Snapshot   `json:"after,omitempty" yaml:"after,omitempty"`
	Difference Difference `json:"difference" yaml:"difference"`
}

// Changes maps rule names to their updates for one target.
type Changes map[string]Change

// Get returns the change for rule name. Missing rules yield the zero Change.
func (c Changes) Get(name string) (Change, bool) {
	ch, ok := c[name]
	return ch, ok
}

// Rules returns the rule names in sorted order.
func (c Changes) Rules() []string {
	return slices.Sorted(maps.Keys(c))
}

// Diff computes the difference between two snapshots. Item specs compare
// exactly; an item is changed when any property value differs. The result
// lists are sorted.
func Diff(before, after Snapshot) Difference {
	var d Difference
	for spec, props := range after {
		old, ok := before[spec]
		switch {
		case !ok:
			d.Added = append(d.Added, spec)
		case !maps.Equal(old, props):
			d.Changed = append(d.Changed, spec)
		}
	}
	for spec := range before {
		if _, ok := after[spec]; !ok {
			d.Removed = append(d.Removed, spec)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

// NewChange builds a Change from two snapshots, computing the difference.
func NewChange(before, after Snapshot) Change {
	return Change{Before: before, After: after, Difference: Diff(before, after)}
}
