package tree

import (
	"slices"
	"strings"

	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/snapshot"
)

// RootCaption is the caption of the dependencies root node.
const RootCaption = "Dependencies"

// Builder reconciles the previous tree with a new snapshot.
type Builder struct {
	roots []ProviderRoot
}

// NewBuilder returns a builder with the default provider roots followed by
// roots.
func NewBuilder(roots ...ProviderRoot) *Builder {
	b := &Builder{roots: slices.Clone(DefaultProviderRoots)}
	for _, r := range roots {
		b.RegisterRoot(r)
	}
	return b
}

// RegisterRoot adds or replaces the grouping node of a provider type.
func (b *Builder) RegisterRoot(r ProviderRoot) {
	if i := providerIndex(b.roots, r.ProviderType); i >= 0 {
		b.roots[i] = r
		return
	}
	b.roots = append(b.roots, r)
}

func (b *Builder) root(providerType string) ProviderRoot {
	if i := providerIndex(b.roots, providerType); i >= 0 {
		return b.roots[i]
	}
	return ProviderRoot{ProviderType: providerType, Caption: providerType, Icon: "Dependency"}
}

// buildState carries the edit list through one Build.
type buildState struct {
	edits []Edit
	quiet int // >0 while building a subtree that is reported as one Add
}

func (s *buildState) emit(kind EditKind, path []string, n *Node) {
	if s.quiet > 0 {
		return
	}
	s.edits = append(s.edits, Edit{Kind: kind, Path: slices.Clone(path), Node: n})
}

// Build returns the tree for snap and the edits that turn prev into it.
// prev may be nil. Nodes whose data did not change are reused from prev, so
// callers can compare subtrees by pointer.
func (b *Builder) Build(prev *Node, snap *snapshot.Snapshot) (*Node, []Edit) {
	st := &buildState{}
	want := &Node{
		Caption:         RootCaption,
		Icon:            "ReferenceGroup",
		ExpandedIcon:    "ReferenceGroup",
		Flags:           model.FlagDependenciesRoot,
		Visible:         true,
		DiagnosticLevel: snap.MaximumDiagnosticLevel(),
	}
	path := []string{RootCaption}

	return b.reconcile(st, prev, want, path, func(prevChildren []*Node) []*Node {
		targets := snap.Targets()
		if len(targets) <= 1 {
			if len(targets) == 0 {
				return b.reconcileChildren(st, prevChildren, nil, path)
			}
			return b.providerNodes(st, prevChildren, targets[0], path)
		}

		var wants []childSpec
		for _, ts := range targets {
			tf := ts.TargetFramework()
			wants = append(wants, childSpec{
				node: &Node{
					Caption:         tf.String(),
					Icon:            "Library",
					ExpandedIcon:    "Library",
					Flags:           model.FlagTargetNode,
					Target:          tf.String(),
					Visible:         true,
					DiagnosticLevel: ts.MaximumDiagnosticLevel(),
				},
				match: func(n *Node) bool {
					return n.Flags.Has(model.FlagTargetNode) && strings.EqualFold(n.Target, tf.String())
				},
				children: func(prevChildren []*Node, path []string) []*Node {
					return b.providerNodes(st, prevChildren, ts, path)
				},
			})
		}
		return b.reconcileChildren(st, prevChildren, wants, path)
	}), st.edits
}

// childSpec describes one wanted child: its own fields, how to find its
// previous incarnation and how to build its children.
type childSpec struct {
	node     *Node
	match    func(*Node) bool
	children func(prevChildren []*Node, path []string) []*Node
}

// reconcile produces the node for want given its previous incarnation.
// The previous node is returned unchanged when neither its fields nor its
// children differ.
func (b *Builder) reconcile(st *buildState, prev, want *Node, path []string, children func([]*Node) []*Node) *Node {
	if prev == nil {
		st.emit(EditAdd, path, want)
		st.quiet++
		want.Children = children(nil)
		st.quiet--
		return want
	}

	same := prev.sameFields(want)
	if !same {
		st.emit(EditUpdate, path, want)
	}
	kids := children(prev.Children)
	if same && slices.Equal(kids, prev.Children) {
		return prev
	}
	want.Children = kids
	return want
}

// reconcileChildren matches wanted children to previous ones in order and
// reports the previous children that no longer exist.
func (b *Builder) reconcileChildren(st *buildState, prevChildren []*Node, wants []childSpec, path []string) []*Node {
	used := make([]bool, len(prevChildren))
	var out []*Node
	for _, w := range wants {
		var prev *Node
		for i, c := range prevChildren {
			if !used[i] && w.match(c) {
				prev, used[i] = c, true
				break
			}
		}
		childPath := append(slices.Clone(path), w.node.Caption)
		out = append(out, b.reconcile(st, prev, w.node, childPath, func(pc []*Node) []*Node {
			return w.children(pc, childPath)
		}))
	}
	for i, c := range prevChildren {
		if !used[i] {
			st.emit(EditRemove, append(slices.Clone(path), c.Caption), c)
		}
	}
	return out
}

// providerNodes builds the provider roots of one target.
func (b *Builder) providerNodes(st *buildState, prevChildren []*Node, ts *snapshot.TargetedSnapshot, path []string) []*Node {
	tf := ts.TargetFramework()
	top := ts.TopLevelDependencies()

	providers := ts.ProviderTypes()
	slices.SortStableFunc(providers, func(a, c string) int {
		return rank(b.roots, a) - rank(b.roots, c)
	})

	var wants []childSpec
	for _, providerType := range providers {
		var visible []*model.Dependency
		for _, d := range top {
			if strings.EqualFold(d.ProviderType(), providerType) && d.Visible() {
				visible = append(visible, d)
			}
		}
		showEmpty := false
		level := model.DiagnosticNone
		for d := range ts.All() {
			if !strings.EqualFold(d.ProviderType(), providerType) {
				continue
			}
			if d.Flags().Has(model.FlagShowEmptyProviderRoot) {
				showEmpty = true
			}
			if d.Visible() {
				level = level.Max(d.DiagnosticLevel())
			}
		}
		if len(visible) == 0 && !showEmpty {
			continue
		}

		r := b.root(providerType)
		flags := model.FlagProviderRoot
		if showEmpty {
			flags |= model.FlagShowEmptyProviderRoot
		}
		wants = append(wants, childSpec{
			node: &Node{
				Caption:         r.Caption,
				Icon:            r.Icon,
				ExpandedIcon:    r.Icon,
				Flags:           flags,
				ProviderType:    r.ProviderType,
				Target:          tf.String(),
				Visible:         true,
				DiagnosticLevel: level,
			},
			match: func(n *Node) bool {
				return n.Flags.Has(model.FlagProviderRoot) &&
					strings.EqualFold(n.ProviderType, providerType) &&
					(n.Target == "" || strings.EqualFold(n.Target, tf.String()))
			},
			children: func(prevChildren []*Node, path []string) []*Node {
				return b.dependencyNodes(st, prevChildren, ts, visible, path, nil)
			},
		})
	}
	return b.reconcileChildren(st, prevChildren, wants, path)
}

func rank(roots []ProviderRoot, providerType string) int {
	if i := providerIndex(roots, providerType); i >= 0 {
		return i
	}
	return len(roots)
}

// dependencyNodes builds one node per dependency in the given order.
// Resolved dependencies that support hierarchy get their children
// recursively; ancestors guards against reference cycles.
func (b *Builder) dependencyNodes(st *buildState, prevChildren []*Node, ts *snapshot.TargetedSnapshot, deps []*model.Dependency, path []string, ancestors []*model.Dependency) []*Node {
	var wants []childSpec
	for _, d := range deps {
		vm := d.ViewModel()
		wants = append(wants, childSpec{
			node: &Node{
				Caption:         vm.Caption,
				FilePath:        vm.FilePath,
				Icon:            vm.Icon,
				ExpandedIcon:    vm.ExpandedIcon,
				Flags:           vm.Flags,
				ProviderType:    d.ProviderType(),
				Target:          d.TargetFramework().String(),
				Visible:         d.Visible(),
				DiagnosticLevel: vm.DiagnosticLevel,
			},
			match: func(n *Node) bool {
				return n.FilePath != "" && strings.EqualFold(n.FilePath, vm.FilePath)
			},
			children: func(prevChildren []*Node, path []string) []*Node {
				if !d.Flags().Has(model.FlagSupportsHierarchy) || !d.Resolved() {
					return b.reconcileChildren(st, prevChildren, nil, path)
				}
				chain := append(slices.Clone(ancestors), d)
				var kids []*model.Dependency
				for _, c := range ts.DependenciesOf(d) {
					if c.Visible() && !slices.Contains(chain, c) {
						kids = append(kids, c)
					}
				}
				return b.dependencyNodes(st, prevChildren, ts, kids, path, chain)
			},
		})
	}
	return b.reconcileChildren(st, prevChildren, wants, path)
}
