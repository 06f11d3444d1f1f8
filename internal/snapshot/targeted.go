package snapshot

import (
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
)

// TargetedSnapshot is the immutable dependency set of one project for one
// target framework. Dependencies keep the order in which they were first
// added.
type TargetedSnapshot struct {
	target   framework.TargetFramework
	catalogs any
	deps     []*model.Dependency
	index    map[string]int // DependencyID.Key -> position in deps

	aliasOnce sync.Once
	aliases   map[string]*model.Dependency // provider\x00lower(item spec)

	topOnce  sync.Once
	topLevel []*model.Dependency

	diagOnce sync.Once
	maxDiag  model.DiagnosticLevel
}

// NewTargeted builds a targeted snapshot from deps. Later duplicates of the
// same identity replace earlier ones in place.
func NewTargeted(t framework.TargetFramework, catalogs any, deps []*model.Dependency) *TargetedSnapshot {
	s := &TargetedSnapshot{target: t, catalogs: catalogs, index: make(map[string]int, len(deps))}
	for _, d := range deps {
		k := d.Key().Key()
		if i, ok := s.index[k]; ok {
			s.deps[i] = d
			continue
		}
		s.index[k] = len(s.deps)
		s.deps = append(s.deps, d)
	}
	return s
}

// EmptyTargeted returns a targeted snapshot with no dependencies.
func EmptyTargeted(t framework.TargetFramework) *TargetedSnapshot {
	return NewTargeted(t, nil, nil)
}

func (s *TargetedSnapshot) TargetFramework() framework.TargetFramework { return s.target }

// Catalogs returns the opaque catalog context passed to Apply.
func (s *TargetedSnapshot) Catalogs() any { return s.catalogs }

// Len returns the number of dependencies.
func (s *TargetedSnapshot) Len() int { return len(s.deps) }

// All iterates the dependencies in order.
func (s *TargetedSnapshot) All() iter.Seq[*model.Dependency] {
	return func(yield func(*model.Dependency) bool) {
		for _, d := range s.deps {
			if !yield(d) {
				return
			}
		}
	}
}

// Dependencies returns the dependencies in order.
func (s *TargetedSnapshot) Dependencies() []*model.Dependency {
	return slices.Clone(s.deps)
}

// Lookup finds a dependency by identity.
func (s *TargetedSnapshot) Lookup(providerType, id string) (*model.Dependency, bool) {
	i, ok := s.index[model.DependencyID{ProviderType: providerType, ModelID: id}.Key()]
	if !ok {
		return nil, false
	}
	return s.deps[i], true
}

// Resolve finds the dependency a DependencyIDs entry of a provider refers
// to. References name either the dependency id or its raw item spec.
// Dangling references return false.
func (s *TargetedSnapshot) Resolve(providerType, ref string) (*model.Dependency, bool) {
	if d, ok := s.Lookup(providerType, ref); ok {
		return d, true
	}
	s.aliasOnce.Do(func() {
		s.aliases = make(map[string]*model.Dependency, len(s.deps))
		for _, d := range s.deps {
			s.aliases[aliasKey(d.ProviderType(), d.ItemSpec())] = d
		}
	})
	d, ok := s.aliases[aliasKey(providerType, ref)]
	return d, ok
}

func aliasKey(providerType, spec string) string {
	return strings.ToLower(providerType) + "\x00" + strings.ToLower(spec)
}

// DependenciesOf returns the resolvable children of d, skipping dangling
// references and references that resolve to an entry already listed.
func (s *TargetedSnapshot) DependenciesOf(d *model.Dependency) []*model.Dependency {
	var out []*model.Dependency
	for _, ref := range d.DependencyIDs() {
		if c, ok := s.Resolve(d.ProviderType(), ref); ok && c != d && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Dependents returns the dependencies whose DependencyIDs resolve to d.
func (s *TargetedSnapshot) Dependents(d *model.Dependency) []*model.Dependency {
	var out []*model.Dependency
	for _, p := range s.deps {
		if p == d || !strings.EqualFold(p.ProviderType(), d.ProviderType()) {
			continue
		}
		if slices.Contains(s.DependenciesOf(p), d) {
			out = append(out, p)
		}
	}
	return out
}

// TopLevelDependencies returns the dependencies declared by the project
// that no other dependency in this snapshot lists as a child. Computed once.
func (s *TargetedSnapshot) TopLevelDependencies() []*model.Dependency {
	s.topOnce.Do(func() {
		children := make(map[*model.Dependency]bool)
		for _, d := range s.deps {
			for _, c := range s.DependenciesOf(d) {
				children[c] = true
			}
		}
		for _, d := range s.deps {
			if d.TopLevel() && !children[d] {
				s.topLevel = append(s.topLevel, d)
			}
		}
	})
	return slices.Clone(s.topLevel)
}

// MaximumDiagnosticLevel is the highest level of any dependency. Computed
// once.
func (s *TargetedSnapshot) MaximumDiagnosticLevel() model.DiagnosticLevel {
	s.diagOnce.Do(func() {
		for _, d := range s.deps {
			s.maxDiag = s.maxDiag.Max(d.DiagnosticLevel())
		}
	})
	return s.maxDiag
}

// ResolvedCount returns the number of resolved dependencies.
func (s *TargetedSnapshot) ResolvedCount() int {
	n := 0
	for _, d := range s.deps {
		if d.Resolved() {
			n++
		}
	}
	return n
}

// UnresolvedCount returns the number of unresolved dependencies.
func (s *TargetedSnapshot) UnresolvedCount() int {
	return len(s.deps) - s.ResolvedCount()
}

// CheckForUnresolvedDependencies reports whether any visible dependency of
// providerType is unresolved. An empty providerType checks all providers.
func (s *TargetedSnapshot) CheckForUnresolvedDependencies(providerType string) bool {
	for _, d := range s.deps {
		if !d.Resolved() && d.Visible() && (providerType == "" || strings.EqualFold(d.ProviderType(), providerType)) {
			return true
		}
	}
	return false
}

// ProviderTypes returns the distinct provider types in first-seen order.
func (s *TargetedSnapshot) ProviderTypes() []string {
	var out []string
	for _, d := range s.deps {
		if !slices.ContainsFunc(out, func(p string) bool { return strings.EqualFold(p, d.ProviderType()) }) {
			out = append(out, d.ProviderType())
		}
	}
	return out
}

// Apply returns a snapshot with ops applied in order. A later add for an
// identity always wins over earlier adds or removes in the same ops list;
// a remove with no later add deletes the entry. Entries that survive keep
// their position (including ones removed and re-added within ops); new
// entries are appended. When the result holds the same data as s, s itself
// is returned.
func (s *TargetedSnapshot) Apply(ops []Op, catalogs any) *TargetedSnapshot {
	if len(ops) == 0 {
		return s
	}

	work := slices.Clone(s.deps)
	index := make(map[string]int, len(s.index))
	for k, v := range s.index {
		index[k] = v
	}
	vacated := map[string]int{}

	for _, op := range ops {
		k := op.Key().Key()
		switch op.Kind {
		case OpRemove:
			if i, ok := index[k]; ok {
				work[i] = nil
				delete(index, k)
				vacated[k] = i
			}
		case OpAdd:
			d := op.Dependency
			if d == nil {
				continue
			}
			if i, ok := index[k]; ok {
				work[i] = keep(s.deps, i, d)
				continue
			}
			if i, ok := vacated[k]; ok {
				work[i] = keep(s.deps, i, d)
				index[k] = i
				delete(vacated, k)
				continue
			}
			index[k] = len(work)
			work = append(work, d)
		}
	}

	deps := make([]*model.Dependency, 0, len(work))
	for _, d := range work {
		if d != nil {
			deps = append(deps, d)
		}
	}
	if slices.Equal(deps, s.deps) {
		return s
	}
	if catalogs == nil {
		catalogs = s.catalogs
	}
	return NewTargeted(s.target, catalogs, deps)
}

// keep returns the existing entry at i when it holds the same data as d,
// so that unchanged dependencies keep their identity across batches.
func keep(prev []*model.Dependency, i int, d *model.Dependency) *model.Dependency {
	if i < len(prev) && prev[i] != nil && prev[i].Equal(d) {
		return prev[i]
	}
	return d
}

// Equal reports whether two targeted snapshots hold the same dependencies
// in the same order.
func (s *TargetedSnapshot) Equal(o *TargetedSnapshot) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || !s.target.Equal(o.target) || len(s.deps) != len(o.deps) {
		return false
	}
	for i := range s.deps {
		if !s.deps[i].Equal(o.deps[i]) {
			return false
		}
	}
	return true
}
