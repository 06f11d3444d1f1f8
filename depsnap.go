package depsnap

import (
	"errors"
	"maps"
	"slices"

	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

var (
	// ErrProjectClosed is returned for work submitted to a closed project.
	ErrProjectClosed = errors.New("depsnap: project closed")
	// ErrEngineClosed is returned by an Engine after Close.
	ErrEngineClosed = errors.New("depsnap: engine closed")
	// ErrUnknownTarget is returned by queries naming a target the snapshot
	// does not have.
	ErrUnknownTarget = errors.New("depsnap: unknown target")
)

// Update is one batch of rule changes for a project.
type Update struct {
	// Target names the target Changes apply to. Empty means the active
	// target.
	Target  string
	Changes rule.Changes
	// PerTarget carries changes for several targets at once, keyed by
	// target name.
	PerTarget map[string]rule.Changes
	// Targets, when set, replaces the project's target list. Targets not
	// listed are dropped; new ones start empty.
	Targets []string
	// ActiveTarget, when set, selects the active target.
	ActiveTarget string
	// Catalogs is passed through to the targeted snapshots untouched.
	Catalogs any

	synthetic *snapshot.ChangeBuilder
}

// UpdateFromBatch converts a decoded batch file entry.
func UpdateFromBatch(b rule.Batch) Update {
	return Update{
		Target:       b.Target,
		Changes:      b.Changes,
		PerTarget:    b.PerTarget,
		Targets:      b.Targets,
		ActiveTarget: b.ActiveTarget,
	}
}

func (u Update) empty() bool {
	return len(u.Changes) == 0 && len(u.PerTarget) == 0 && len(u.Targets) == 0 &&
		u.ActiveTarget == "" && (u.synthetic == nil || u.synthetic.Empty())
}

// DependenciesChangedEvent is delivered to project subscribers once per
// applied batch, or once per quiet period when publishing is debounced.
type DependenciesChangedEvent struct {
	ProjectPath string
	// Previous is the snapshot before the first batch the event covers.
	Previous *Snapshot
	Current  *Snapshot
	// Targets lists the names of targets whose dependencies changed.
	Targets []string
	// Providers lists the provider types the covered batches touched.
	Providers []string
	// Changes holds every operation of the covered batches, in order.
	Changes *ChangeBuilder
}

// merge folds a later event for the same project into e.
func (e DependenciesChangedEvent) merge(later DependenciesChangedEvent) DependenciesChangedEvent {
	out := e
	out.Current = later.Current
	out.Targets = union(e.Targets, later.Targets)
	out.Providers = union(e.Providers, later.Providers)
	merged := snapshot.NewChangeBuilder()
	merged.Merge(e.Changes)
	merged.Merge(later.Changes)
	out.Changes = merged
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	out := slices.Clone(a)
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
