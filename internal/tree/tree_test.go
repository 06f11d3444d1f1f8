package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/snapshot"
)

var (
	tfm1 = framework.TargetFramework{ShortName: "tfm1", FullName: "tfm1"}
	tfm2 = framework.TargetFramework{ShortName: "tfm2", FullName: "tfm2"}
)

func yyy(id, caption string) model.Model {
	return model.Model{ProviderType: "Yyy", OriginalItemSpec: id, Caption: caption, Kind: model.KindAssembly, Resolved: true}
}

func build(t framework.TargetFramework, models ...model.Model) *snapshot.TargetedSnapshot {
	deps := make([]*model.Dependency, len(models))
	for i, m := range models {
		deps[i] = model.New(m, t)
	}
	return snapshot.NewTargeted(t, nil, deps)
}

func snap(targets ...*snapshot.TargetedSnapshot) *snapshot.Snapshot {
	return snapshot.New("/src/app/app.csproj", framework.Empty, targets)
}

func newTestBuilder() *Builder {
	return NewBuilder(ProviderRoot{ProviderType: "Yyy", Caption: "YyyDependencyRoot", Icon: "Dependency"})
}

func editStrings(edits []Edit) []string {
	out := make([]string, len(edits))
	for i, e := range edits {
		out[i] = e.String()
	}
	return out
}

func TestBuild_RetainsExistingAndAppendsNew(t *testing.T) {
	t.Parallel()
	b := newTestBuilder()

	prev, _ := b.Build(nil, snap(build(tfm1, yyy("dependencyExisting", "DependencyExisting"))))
	existing := prev.Find(func(n *Node) bool { return n.Caption == "DependencyExisting" })
	require.NotNil(t, existing)
	assert.Equal(t, `tfm1\yyy\dependencyExisting`, existing.FilePath)

	next, edits := b.Build(prev, snap(build(tfm1,
		yyy("dependencyExisting", "DependencyExisting"),
		yyy("dependency1", "Dependency1"),
	)))

	root := next.ChildByCaption("YyyDependencyRoot")
	require.NotNil(t, root)
	assert.Equal(t, []string{"DependencyExisting", "Dependency1"}, root.Captions())
	assert.Same(t, existing, root.Children[0])
	assert.Equal(t, []string{"add Dependencies/YyyDependencyRoot/Dependency1"}, editStrings(edits))
}

func TestBuild_SuppliedOrderIsKept(t *testing.T) {
	t.Parallel()
	next, _ := newTestBuilder().Build(nil, snap(build(tfm1,
		yyy("z", "Zed"),
		yyy("a", "Alpha"),
		yyy("m", "Mid"),
	)))
	assert.Equal(t, []string{"Zed", "Alpha", "Mid"}, next.ChildByCaption("YyyDependencyRoot").Captions())
}

func TestBuild_UnchangedSnapshotReusesTree(t *testing.T) {
	t.Parallel()
	b := newTestBuilder()
	s := snap(build(tfm1, yyy("a", "A"), yyy("b", "B")))
	prev, _ := b.Build(nil, s)

	next, edits := b.Build(prev, snap(build(tfm1, yyy("a", "A"), yyy("b", "B"))))
	assert.Same(t, prev, next)
	assert.Empty(t, edits)
}

func TestBuild_UpdateInPlace(t *testing.T) {
	t.Parallel()
	b := newTestBuilder()
	prev, _ := b.Build(nil, snap(build(tfm1, yyy("a", "A"), yyy("b", "B"))))
	oldB := prev.Find(func(n *Node) bool { return n.Caption == "B" })

	changed := yyy("a", "A")
	changed.Resolved = false
	changed.DiagnosticLevel = model.DiagnosticWarning
	next, edits := b.Build(prev, snap(build(tfm1, changed, yyy("b", "B"))))

	a := next.Find(func(n *Node) bool { return n.Caption == "A" })
	require.NotNil(t, a)
	assert.Equal(t, model.Icon("ReferenceWarning"), a.Icon)
	assert.Equal(t, model.DiagnosticWarning, a.DiagnosticLevel)
	assert.Same(t, oldB, next.Find(func(n *Node) bool { return n.Caption == "B" }))

	// The level bubbles up to the provider root and the tree root.
	assert.Equal(t, []string{
		"update Dependencies",
		"update Dependencies/YyyDependencyRoot",
		"update Dependencies/YyyDependencyRoot/A",
	}, editStrings(edits))
}

func TestBuild_Removal(t *testing.T) {
	t.Parallel()
	b := newTestBuilder()
	prev, _ := b.Build(nil, snap(build(tfm1, yyy("a", "A"), yyy("b", "B"))))

	next, edits := b.Build(prev, snap(build(tfm1, yyy("b", "B"))))
	assert.Equal(t, []string{"B"}, next.ChildByCaption("YyyDependencyRoot").Captions())
	assert.Equal(t, []string{"remove Dependencies/YyyDependencyRoot/A"}, editStrings(edits))

	// Removing the last dependency hides the provider root.
	empty, edits := b.Build(next, snap(snapshot.EmptyTargeted(tfm1)))
	assert.Empty(t, empty.Children)
	assert.Equal(t, []string{"remove Dependencies/YyyDependencyRoot"}, editStrings(edits))
}

func TestBuild_EmptyProviderRoot(t *testing.T) {
	t.Parallel()
	hidden := yyy("marker", "Marker")
	hidden.Properties = map[string]string{"Visible": "false"}

	t.Run("hidden without marker", func(t *testing.T) {
		t.Parallel()
		root, _ := newTestBuilder().Build(nil, snap(build(tfm1, hidden)))
		assert.Nil(t, root.ChildByCaption("YyyDependencyRoot"))
	})

	t.Run("shown with marker", func(t *testing.T) {
		t.Parallel()
		m := hidden
		m.ExtraFlags = model.FlagShowEmptyProviderRoot
		root, _ := newTestBuilder().Build(nil, snap(build(tfm1, m)))
		pr := root.ChildByCaption("YyyDependencyRoot")
		require.NotNil(t, pr)
		assert.Empty(t, pr.Children)
		assert.True(t, pr.Flags.Has(model.FlagProviderRoot))
	})

	t.Run("marker is per target", func(t *testing.T) {
		t.Parallel()
		m := hidden
		m.ExtraFlags = model.FlagShowEmptyProviderRoot
		root, _ := newTestBuilder().Build(nil, snap(build(tfm1, m), build(tfm2, hidden)))
		assert.NotNil(t, root.ChildByCaption("tfm1").ChildByCaption("YyyDependencyRoot"))
		assert.Nil(t, root.ChildByCaption("tfm2").ChildByCaption("YyyDependencyRoot"))
	})
}

func TestBuild_TargetGrouping(t *testing.T) {
	t.Parallel()
	b := newTestBuilder()

	single, _ := b.Build(nil, snap(build(tfm1, yyy("a", "A"))))
	assert.Equal(t, []string{"YyyDependencyRoot"}, single.Captions())

	multi, edits := b.Build(single, snap(build(tfm1, yyy("a", "A")), build(tfm2, yyy("b", "B"))))
	assert.Equal(t, []string{"tfm1", "tfm2"}, multi.Captions())
	assert.True(t, multi.Children[0].Flags.Has(model.FlagTargetNode))
	assert.Equal(t, []string{"YyyDependencyRoot"}, multi.ChildByCaption("tfm2").Captions())
	assert.Equal(t, []string{
		"add Dependencies/tfm1",
		"add Dependencies/tfm2",
		"remove Dependencies/YyyDependencyRoot",
	}, editStrings(edits))
}

func TestBuild_ProviderRootOrder(t *testing.T) {
	t.Parallel()
	root, _ := NewBuilder().Build(nil, snap(build(tfm1,
		model.Model{ProviderType: model.ProjectDependency, OriginalItemSpec: "../lib/lib.csproj", Kind: model.KindProject, Resolved: true},
		model.Model{ProviderType: "Custom", OriginalItemSpec: "thing"},
		model.Model{ProviderType: model.NuGetDependency, OriginalItemSpec: "Foo", Kind: model.KindPackage, Resolved: true},
		model.Model{ProviderType: model.FrameworkDependency, OriginalItemSpec: "Microsoft.NETCore.App", Kind: model.KindFramework, Resolved: true},
	)))
	assert.Equal(t, []string{"Frameworks", "Packages", "Projects", "Custom"}, root.Captions())
}

func TestBuild_Hierarchy(t *testing.T) {
	t.Parallel()
	pkg := func(id string, resolved, transitive bool, children ...string) model.Model {
		return model.Model{
			ProviderType:     model.NuGetDependency,
			OriginalItemSpec: id,
			Kind:             model.KindPackage,
			Resolved:         resolved,
			Transitive:       transitive,
			DependencyIDs:    children,
		}
	}

	root, _ := NewBuilder().Build(nil, snap(build(tfm1,
		pkg("Top", true, false, "A"),
		pkg("A", true, true, "B"),
		pkg("B", true, true, "A"),
		pkg("Broken", false, false, "A"),
	)))
	pkgs := root.ChildByCaption("Packages")
	require.NotNil(t, pkgs)
	assert.Equal(t, []string{"Top", "Broken"}, pkgs.Captions())

	top := pkgs.ChildByCaption("Top")
	var chain []string
	top.Walk(func(depth int, n *Node) { chain = append(chain, n.Caption) })
	assert.Equal(t, []string{"Top", "A", "B"}, chain, "cycle back to A is cut")

	assert.Empty(t, pkgs.ChildByCaption("Broken").Children, "unresolved items are leaves")
}

func TestBuild_RootLevel(t *testing.T) {
	t.Parallel()
	m := yyy("bad", "Bad")
	m.DiagnosticLevel = model.DiagnosticError
	root, _ := newTestBuilder().Build(nil, snap(build(tfm1, m)))
	assert.Equal(t, model.DiagnosticError, root.DiagnosticLevel)
	assert.True(t, root.Flags.Has(model.FlagDependenciesRoot))
}

func TestEdit_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "update A/B", Edit{Kind: EditUpdate, Path: []string{"A", "B"}}.String())
	assert.Equal(t, "remove", EditRemove.String())
}
