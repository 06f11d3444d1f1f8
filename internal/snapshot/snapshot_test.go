package snapshot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
)

var (
	tfm1 = framework.TargetFramework{ShortName: "tfm1", FullName: "tfm1"}
	tfm2 = framework.TargetFramework{ShortName: "tfm2", FullName: "tfm2"}
)

func dep(id string, resolved bool) model.Model {
	return model.Model{ProviderType: "Yyy", OriginalItemSpec: id, Kind: model.KindAssembly, Resolved: resolved}
}

func ids(ts *TargetedSnapshot) []string {
	var out []string
	for d := range ts.All() {
		out = append(out, d.ID())
	}
	return out
}

func TestApply_LaterAddWins(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, dep("Foo", false))
	b.Removed(tfm1, "Yyy", "Foo")
	b.Added(tfm1, dep("foo", true))

	s := Empty("a.csproj").Apply(b, nil)
	ts, ok := s.Target(tfm1)
	require.True(t, ok)
	require.Equal(t, 1, ts.Len())
	d, ok := ts.Lookup("yyy", "FOO")
	require.True(t, ok)
	assert.True(t, d.Resolved())
}

func TestApply_RemoveDeletes(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, dep("a", true))
	b.Added(tfm1, dep("b", true))
	s := Empty("p").Apply(b, nil)

	b = NewChangeBuilder()
	b.Removed(tfm1, "Yyy", "a")
	s = s.Apply(b, nil)
	ts, _ := s.Target(tfm1)
	assert.Equal(t, []string{"b"}, ids(ts))
}

func TestApply_PreservesPositions(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	for _, id := range []string{"c", "a", "b"} {
		b.Added(tfm1, dep(id, false))
	}
	s := Empty("p").Apply(b, nil)

	b = NewChangeBuilder()
	b.Removed(tfm1, "Yyy", "a")
	b.Added(tfm1, dep("a", true))
	b.Added(tfm1, dep("d", true))
	s = s.Apply(b, nil)

	ts, _ := s.Target(tfm1)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(ts))
}

func TestApply_IdenticalBatchIsNoOp(t *testing.T) {
	t.Parallel()
	batch := func() *ChangeBuilder {
		b := NewChangeBuilder()
		b.Added(tfm1, dep("a", true))
		b.Added(tfm2, dep("b", false))
		return b
	}
	s1 := Empty("p").Apply(batch(), nil)
	s2 := s1.Apply(batch(), nil)

	assert.Same(t, s1, s2)
	assert.True(t, s1.Equal(s2))
}

func TestApply_ReusesUntouchedTargets(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, dep("a", true))
	b.Added(tfm2, dep("a", true))
	s1 := Empty("p").Apply(b, nil)

	b = NewChangeBuilder()
	b.Added(tfm2, dep("z", true))
	s2 := s1.Apply(b, nil)

	require.NotSame(t, s1, s2)
	t1a, _ := s1.Target(tfm1)
	t1b, _ := s2.Target(tfm1)
	assert.Same(t, t1a, t1b)

	t2a, _ := s1.Target(tfm2)
	t2b, _ := s2.Target(tfm2)
	assert.NotSame(t, t2a, t2b)
	assert.Same(t, t2a.Dependencies()[0], t2b.Dependencies()[0], "unchanged dependency keeps identity")
}

func TestApply_RemoveOnUnknownTargetIsNoOp(t *testing.T) {
	t.Parallel()
	s := Empty("p")
	b := NewChangeBuilder()
	b.Removed(tfm1, "Yyy", "x")
	assert.Same(t, s, s.Apply(b, nil))
}

func TestNew_ActiveTargetFallsBack(t *testing.T) {
	t.Parallel()
	s := New("p", framework.TargetFramework{ShortName: "missing"}, []*TargetedSnapshot{EmptyTargeted(tfm2), EmptyTargeted(tfm1), EmptyTargeted(tfm2)})
	assert.Equal(t, tfm2, s.ActiveTarget())
	assert.Len(t, s.Targets(), 2)

	assert.True(t, New("p", tfm1, nil).ActiveTarget().IsEmpty())
}

func TestSetTargets(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, dep("a", true))
	s := New("p", tfm1, []*TargetedSnapshot{EmptyTargeted(tfm1)}).Apply(b, nil)
	t1, _ := s.Target(tfm1)

	s2 := s.SetTargets([]framework.TargetFramework{tfm2, tfm1}, tfm2)
	assert.Equal(t, []framework.TargetFramework{tfm2, tfm1}, s2.TargetFrameworks())
	assert.Equal(t, tfm2, s2.ActiveTarget())
	reused, _ := s2.Target(tfm1)
	assert.Same(t, t1, reused)

	s3 := s2.SetTargets([]framework.TargetFramework{tfm2}, framework.Empty)
	_, ok := s3.Target(tfm1)
	assert.False(t, ok)

	assert.Same(t, s3, s3.SetTargets([]framework.TargetFramework{tfm2}, tfm2))
}

func TestTopLevelDependencies(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, model.Model{ProviderType: model.NuGetDependency, OriginalItemSpec: "Foo", Kind: model.KindPackage, Resolved: true,
		ItemSpec: "tfm1/Foo/1.0.0", DependencyIDs: []string{"tfm1/Bar/2.0.0", "tfm1/Missing/1.0.0"}})
	b.Added(tfm1, model.Model{ProviderType: model.NuGetDependency, OriginalItemSpec: "tfm1/Bar/2.0.0", Kind: model.KindPackage, Resolved: true, Transitive: true})
	b.Added(tfm1, model.Model{ProviderType: model.NuGetDependency, OriginalItemSpec: "Baz", Kind: model.KindPackage, DiagnosticLevel: model.DiagnosticWarning})
	ts, _ := Empty("p").Apply(b, nil).Target(tfm1)

	var top []string
	for _, d := range ts.TopLevelDependencies() {
		top = append(top, d.ID())
	}
	assert.Equal(t, []string{"Foo", "Baz"}, top)

	foo, _ := ts.Lookup(model.NuGetDependency, "Foo")
	children := ts.DependenciesOf(foo)
	require.Len(t, children, 1, "dangling references are skipped")
	assert.Equal(t, "tfm1/Bar/2.0.0", children[0].ID())
	assert.Equal(t, []*model.Dependency{foo}, ts.Dependents(children[0]))

	alias, ok := ts.Resolve(model.NuGetDependency, "TFM1/foo/1.0.0")
	require.True(t, ok)
	assert.Same(t, foo, alias)

	assert.Equal(t, model.DiagnosticWarning, ts.MaximumDiagnosticLevel())
	assert.Equal(t, 2, ts.ResolvedCount())
	assert.Equal(t, 1, ts.UnresolvedCount())
	assert.True(t, ts.CheckForUnresolvedDependencies(model.NuGetDependency))
	assert.False(t, ts.CheckForUnresolvedDependencies(model.AssemblyDependency))
}

func TestChangeBuilder(t *testing.T) {
	t.Parallel()
	a := NewChangeBuilder()
	a.Added(tfm1, dep("x", true))
	c := NewChangeBuilder()
	c.Removed(tfm2, "Other", "y")
	c.Added(tfm1, dep("z", true))
	a.Merge(c)

	assert.Equal(t, []framework.TargetFramework{tfm1, tfm2}, a.Targets())
	assert.Equal(t, []string{"Yyy", "Other"}, a.Providers())
	assert.Equal(t, 3, a.Len())
	ops := a.Ops(tfm1)
	require.Len(t, ops, 2)
	assert.Equal(t, "z", ops[1].ID)
	assert.True(t, NewChangeBuilder().Empty())
}

func TestChangeBuilder_AddedPanicsOnEmptySpec(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewChangeBuilder().Added(tfm1, model.Model{ProviderType: "Yyy"}) })
}

func TestSlot_Update(t *testing.T) {
	t.Parallel()
	slot := NewSlot(Empty("p"))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot.Update(func(s *Snapshot) *Snapshot {
				b := NewChangeBuilder()
				b.Added(tfm1, dep(string(rune('a'+i)), true))
				return s.Apply(b, nil)
			})
		}()
	}
	wg.Wait()

	ts, ok := slot.Load().Target(tfm1)
	require.True(t, ok)
	assert.Equal(t, 20, ts.Len())
}

func TestFromChanges(t *testing.T) {
	t.Parallel()
	b := NewChangeBuilder()
	b.Added(tfm1, dep("a", true))

	s := FromChanges("p.csproj", nil, b, "catalogs")
	assert.Equal(t, "p.csproj", s.ProjectPath())
	ts, ok := s.Target(tfm1)
	require.True(t, ok)
	assert.Equal(t, "catalogs", ts.Catalogs())

	assert.Same(t, s, FromChanges("p.csproj", s, NewChangeBuilder(), nil))
}
