package depsnap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
)

// QueryBuilder answers questions about one snapshot. It never observes
// later batches; take a new one from Project.Query to see them.
type QueryBuilder struct {
	snap       *Snapshot
	frameworks framework.Provider
}

func newQueryBuilder(snap *Snapshot, frameworks framework.Provider) *QueryBuilder {
	if frameworks == nil {
		frameworks = framework.ParserProvider{}
	}
	return &QueryBuilder{snap: snap, frameworks: frameworks}
}

// NewQuery returns a QueryBuilder over snap.
func NewQuery(snap *Snapshot) *QueryBuilder {
	return newQueryBuilder(snap, nil)
}

// Snapshot returns the snapshot being queried.
func (q *QueryBuilder) Snapshot() *Snapshot { return q.snap }

// Target returns the targeted snapshot named target, matched by display,
// short or full name. An empty name selects the active target.
func (q *QueryBuilder) Target(target string) (*TargetedSnapshot, error) {
	if target == "" {
		if ts, ok := q.snap.ActiveTargeted(); ok {
			return ts, nil
		}
		return nil, fmt.Errorf("%w: no active target", ErrUnknownTarget)
	}
	for _, ts := range q.snap.Targets() {
		tf := ts.TargetFramework()
		if strings.EqualFold(tf.String(), target) || strings.EqualFold(tf.ShortName, target) || strings.EqualFold(tf.FullName, target) {
			return ts, nil
		}
	}
	if tf, ok := q.frameworks.GetTargetFramework(target); ok {
		if ts, ok := q.snap.Target(tf); ok {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
}

// TopLevel returns the declared dependencies of target that no other
// dependency pulls in.
func (q *QueryBuilder) TopLevel(target string) ([]*Dependency, error) {
	ts, err := q.Target(target)
	if err != nil {
		return nil, err
	}
	return ts.TopLevelDependencies(), nil
}

// All returns every dependency of target.
func (q *QueryBuilder) All(target string) ([]*Dependency, error) {
	ts, err := q.Target(target)
	if err != nil {
		return nil, err
	}
	return ts.Dependencies(), nil
}

// Lookup finds a dependency by provider type and id, case-insensitively.
func (q *QueryBuilder) Lookup(target, providerType, id string) (*Dependency, error) {
	ts, err := q.Target(target)
	if err != nil {
		return nil, err
	}
	d, ok := ts.Lookup(providerType, id)
	if !ok {
		return nil, nil
	}
	return d, nil
}

// Unresolved returns the unresolved dependencies of every target, in
// target order.
func (q *QueryBuilder) Unresolved() []*Dependency {
	var out []*Dependency
	for _, ts := range q.snap.Targets() {
		for d := range ts.All() {
			if !d.Resolved() {
				out = append(out, d)
			}
		}
	}
	return out
}

// Children returns the dependencies d lists in its dependency ids that are
// present in d's target. Dangling ids are skipped.
func (q *QueryBuilder) Children(d *Dependency) []*Dependency {
	ts, ok := q.snap.Target(d.TargetFramework())
	if !ok {
		return nil
	}
	return ts.DependenciesOf(d)
}

// Dependents returns the dependencies of d's target that list d.
func (q *QueryBuilder) Dependents(d *Dependency) []*Dependency {
	ts, ok := q.snap.Target(d.TargetFramework())
	if !ok {
		return nil
	}
	return ts.Dependents(d)
}

// TargetSummary counts the dependencies of one target.
type TargetSummary struct {
	Target          string          `json:"target"`
	Active          bool            `json:"active"`
	Dependencies    int             `json:"dependencies"`
	TopLevel        int             `json:"top_level"`
	Resolved        int             `json:"resolved"`
	Unresolved      int             `json:"unresolved"`
	DiagnosticLevel DiagnosticLevel `json:"-"`
	Diagnostic      string          `json:"diagnostic_level"`
}

// Summary returns one TargetSummary per target, in target order.
func (q *QueryBuilder) Summary() []TargetSummary {
	active := q.snap.ActiveTarget()
	out := make([]TargetSummary, 0, len(q.snap.Targets()))
	for _, ts := range q.snap.Targets() {
		lvl := ts.MaximumDiagnosticLevel()
		out = append(out, TargetSummary{
			Target:          ts.TargetFramework().String(),
			Active:          ts.TargetFramework().Equal(active),
			Dependencies:    ts.Len(),
			TopLevel:        len(ts.TopLevelDependencies()),
			Resolved:        ts.ResolvedCount(),
			Unresolved:      ts.UnresolvedCount(),
			DiagnosticLevel: lvl,
			Diagnostic:      lvl.String(),
		})
	}
	return out
}

// TargetVersion is the version of a package in one target.
type TargetVersion struct {
	Target  string `json:"target"`
	Version string `json:"version"`
}

// VersionConflict is a package that resolves to different versions across
// targets.
type VersionConflict struct {
	Package string          `json:"package"`
	Highest string          `json:"highest"`
	Targets []TargetVersion `json:"targets"`
}

// VersionConflicts reports the resolved packages whose versions differ
// between targets. Targets are ordered from the highest version down; versions that
// are not semver sort after the others. Conflicts are sorted by package
// name.
func (q *QueryBuilder) VersionConflicts() []VersionConflict {
	byName := map[string][]TargetVersion{}
	display := map[string]string{}
	for _, ts := range q.snap.Targets() {
		for d := range ts.All() {
			if !strings.EqualFold(d.ProviderType(), model.NuGetDependency) || d.Kind() != model.KindPackage || !d.Resolved() || d.Version() == "" {
				continue
			}
			name := packageName(d)
			key := strings.ToLower(name)
			if _, ok := display[key]; !ok {
				display[key] = name
			}
			byName[key] = append(byName[key], TargetVersion{
				Target:  ts.TargetFramework().String(),
				Version: d.Version(),
			})
		}
	}

	var out []VersionConflict
	for key, tvs := range byName {
		sort.SliceStable(tvs, func(i, j int) bool { return compareVersions(tvs[i].Version, tvs[j].Version) > 0 })
		if compareVersions(tvs[0].Version, tvs[len(tvs)-1].Version) == 0 {
			continue
		}
		out = append(out, VersionConflict{
			Package: display[key],
			Highest: tvs[0].Version,
			Targets: tvs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Package) < strings.ToLower(out[j].Package)
	})
	return out
}

// packageName is the package id of d: its Name property, or the id with
// any "target/" prefix and "/version" suffix removed.
func packageName(d *Dependency) string {
	if name, ok := d.Property("Name"); ok && name != "" {
		return name
	}
	parts := strings.Split(d.ID(), "/")
	if len(parts) >= 3 {
		return parts[1]
	}
	return parts[0]
}

// compareVersions orders semver versions numerically. Anything else ranks
// below every semver version and compares lexically.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}
