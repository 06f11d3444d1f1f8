// Package snapshot holds the immutable dependency state of a project: one
// TargetedSnapshot per target framework, aggregated into a Snapshot, and
// the ChangeBuilder that moves a Snapshot to its successor.
package snapshot

import (
	"slices"
	"sync/atomic"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
)

// Snapshot is the immutable dependency state of one project across all its
// target frameworks.
type Snapshot struct {
	projectPath string
	active      framework.TargetFramework
	targets     []*TargetedSnapshot
}

// Empty returns a snapshot with no targets.
func Empty(projectPath string) *Snapshot {
	return &Snapshot{projectPath: projectPath}
}

// New builds a snapshot. Duplicate targets keep the first occurrence. An
// active target that is not among targets falls back to the first target,
// or to the empty target when there are none.
func New(projectPath string, active framework.TargetFramework, targets []*TargetedSnapshot) *Snapshot {
	s := &Snapshot{projectPath: projectPath}
	for _, t := range targets {
		if t == nil || s.indexOf(t.TargetFramework()) >= 0 {
			continue
		}
		s.targets = append(s.targets, t)
	}
	s.active = s.pickActive(active)
	return s
}

func (s *Snapshot) pickActive(active framework.TargetFramework) framework.TargetFramework {
	if i := s.indexOf(active); i >= 0 {
		return s.targets[i].TargetFramework()
	}
	if len(s.targets) > 0 {
		return s.targets[0].TargetFramework()
	}
	return framework.Empty
}

func (s *Snapshot) indexOf(t framework.TargetFramework) int {
	if t.IsEmpty() {
		return -1
	}
	return slices.IndexFunc(s.targets, func(ts *TargetedSnapshot) bool {
		return ts.TargetFramework().Equal(t)
	})
}

func (s *Snapshot) ProjectPath() string { return s.projectPath }

// ActiveTarget is the target used for single-target views.
func (s *Snapshot) ActiveTarget() framework.TargetFramework { return s.active }

// Targets returns the targeted snapshots in order.
func (s *Snapshot) Targets() []*TargetedSnapshot { return slices.Clone(s.targets) }

// TargetFrameworks returns the target frameworks in order.
func (s *Snapshot) TargetFrameworks() []framework.TargetFramework {
	out := make([]framework.TargetFramework, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.TargetFramework()
	}
	return out
}

// Target returns the targeted snapshot for t.
func (s *Snapshot) Target(t framework.TargetFramework) (*TargetedSnapshot, bool) {
	i := s.indexOf(t)
	if i < 0 {
		return nil, false
	}
	return s.targets[i], true
}

// ActiveTargeted returns the targeted snapshot of the active target.
func (s *Snapshot) ActiveTargeted() (*TargetedSnapshot, bool) {
	return s.Target(s.active)
}

// MaximumDiagnosticLevel is the highest level across all targets.
func (s *Snapshot) MaximumDiagnosticLevel() model.DiagnosticLevel {
	var l model.DiagnosticLevel
	for _, t := range s.targets {
		l = l.Max(t.MaximumDiagnosticLevel())
	}
	return l
}

// Apply returns the successor of s after the operations in b. Targets that
// b does not touch are carried over by reference; a target b names that is
// not yet present is added empty first. When nothing changes, s itself is
// returned.
func (s *Snapshot) Apply(b *ChangeBuilder, catalogs any) *Snapshot {
	if b == nil || b.Empty() {
		return s
	}
	targets := slices.Clone(s.targets)
	changed := false
	for _, tf := range b.Targets() {
		if i := s.indexOf(tf); i >= 0 {
			next := targets[i].Apply(b.Ops(tf), catalogs)
			if next != targets[i] {
				targets[i] = next
				changed = true
			}
			continue
		}
		cur := EmptyTargeted(tf)
		if next := cur.Apply(b.Ops(tf), catalogs); next != cur {
			targets = append(targets, next)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return &Snapshot{projectPath: s.projectPath, active: s.pickActiveFrom(targets), targets: targets}
}

// FromChanges returns the successor of prev after b. A nil prev stands for
// the empty snapshot of projectPath.
func FromChanges(projectPath string, prev *Snapshot, b *ChangeBuilder, catalogs any) *Snapshot {
	if prev == nil {
		prev = Empty(projectPath)
	}
	return prev.Apply(b, catalogs)
}

func (s *Snapshot) pickActiveFrom(targets []*TargetedSnapshot) framework.TargetFramework {
	tmp := &Snapshot{targets: targets}
	return tmp.pickActive(s.active)
}

// SetTargets returns a snapshot restricted to targets, in that order.
// Existing targeted snapshots are reused; new targets start empty. When
// neither the target list nor the active target changes, s is returned.
func (s *Snapshot) SetTargets(targets []framework.TargetFramework, active framework.TargetFramework) *Snapshot {
	next := make([]*TargetedSnapshot, 0, len(targets))
	for _, tf := range targets {
		if ts, ok := s.Target(tf); ok {
			next = append(next, ts)
		} else {
			next = append(next, EmptyTargeted(tf))
		}
	}
	if active.IsEmpty() {
		active = s.active
	}
	n := New(s.projectPath, active, next)
	if slices.Equal(n.targets, s.targets) && n.active.Equal(s.active) {
		return s
	}
	return n
}

// Equal reports whether two snapshots describe the same state.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.projectPath != o.projectPath || !s.active.Equal(o.active) || len(s.targets) != len(o.targets) {
		return false
	}
	for i := range s.targets {
		if !s.targets[i].Equal(o.targets[i]) {
			return false
		}
	}
	return true
}

// Slot holds the current snapshot of a project. Readers always observe a
// complete snapshot; writers publish with compare-and-swap.
type Slot struct {
	p atomic.Pointer[Snapshot]
}

// NewSlot returns a slot holding initial.
func NewSlot(initial *Snapshot) *Slot {
	s := &Slot{}
	s.p.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *Slot) Load() *Snapshot { return s.p.Load() }

// CompareAndSwap publishes next if the slot still holds prev.
func (s *Slot) CompareAndSwap(prev, next *Snapshot) bool {
	return s.p.CompareAndSwap(prev, next)
}

// Update applies fn to the current snapshot until the result is published
// without interference, and returns the previous and published snapshots.
func (s *Slot) Update(fn func(*Snapshot) *Snapshot) (prev, next *Snapshot) {
	for {
		prev = s.p.Load()
		next = fn(prev)
		if next == prev || s.p.CompareAndSwap(prev, next) {
			return prev, next
		}
	}
}
