package snapshot

import (
	"slices"
	"strings"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
)

// OpKind distinguishes additions from removals in a ChangeBuilder.
type OpKind int

const (
	OpAdd OpKind = iota
	OpRemove
)

func (k OpKind) String() string {
	if k == OpRemove {
		return "remove"
	}
	return "add"
}

// Op is one recorded change for a target.
type Op struct {
	Kind         OpKind
	ProviderType string
	ID           string
	Dependency   *model.Dependency // set for OpAdd
}

// Key returns the identity the op applies to.
func (o Op) Key() model.DependencyID {
	return model.DependencyID{ProviderType: o.ProviderType, ModelID: o.ID}
}

type targetOps struct {
	target framework.TargetFramework
	ops    []Op
}

// ChangeBuilder accumulates additions and removals from the rule handlers
// of one batch. Operations keep their order per target. A ChangeBuilder is
// not safe for concurrent use; give each goroutine its own and Merge them.
type ChangeBuilder struct {
	targets []*targetOps
}

// NewChangeBuilder returns an empty builder.
func NewChangeBuilder() *ChangeBuilder {
	return &ChangeBuilder{}
}

func (b *ChangeBuilder) forTarget(t framework.TargetFramework) *targetOps {
	for _, to := range b.targets {
		if to.target.Equal(t) {
			return to
		}
	}
	to := &targetOps{target: t}
	b.targets = append(b.targets, to)
	return to
}

// Added records that m should be present in target t, replacing any entry
// with the same identity. It returns the built dependency.
func (b *ChangeBuilder) Added(t framework.TargetFramework, m model.Model) *model.Dependency {
	d := model.New(m, t)
	b.AddedDependency(d)
	return d
}

// AddedDependency records an already-built dependency under its own target.
func (b *ChangeBuilder) AddedDependency(d *model.Dependency) {
	to := b.forTarget(d.TargetFramework())
	to.ops = append(to.ops, Op{Kind: OpAdd, ProviderType: d.ProviderType(), ID: d.ID(), Dependency: d})
}

// Removed records that the dependency (providerType, id) should be absent
// from target t.
func (b *ChangeBuilder) Removed(t framework.TargetFramework, providerType, id string) {
	to := b.forTarget(t)
	to.ops = append(to.ops, Op{Kind: OpRemove, ProviderType: providerType, ID: id})
}

// Merge appends every operation of o after those already recorded.
func (b *ChangeBuilder) Merge(o *ChangeBuilder) {
	if o == nil {
		return
	}
	for _, to := range o.targets {
		dst := b.forTarget(to.target)
		dst.ops = append(dst.ops, to.ops...)
	}
}

// Targets returns the targets that have operations, in first-touched order.
func (b *ChangeBuilder) Targets() []framework.TargetFramework {
	var out []framework.TargetFramework
	for _, to := range b.targets {
		if len(to.ops) > 0 {
			out = append(out, to.target)
		}
	}
	return out
}

// Ops returns the operations recorded for t in order.
func (b *ChangeBuilder) Ops(t framework.TargetFramework) []Op {
	for _, to := range b.targets {
		if to.target.Equal(t) {
			return slices.Clone(to.ops)
		}
	}
	return nil
}

// Providers returns the distinct provider types touched, in first-seen
// order and compared case-insensitively.
func (b *ChangeBuilder) Providers() []string {
	var out []string
	for _, to := range b.targets {
		for _, op := range to.ops {
			if !slices.ContainsFunc(out, func(p string) bool { return strings.EqualFold(p, op.ProviderType) }) {
				out = append(out, op.ProviderType)
			}
		}
	}
	return out
}

// Empty reports whether no operation was recorded.
func (b *ChangeBuilder) Empty() bool {
	for _, to := range b.targets {
		if len(to.ops) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of recorded operations.
func (b *ChangeBuilder) Len() int {
	n := 0
	for _, to := range b.targets {
		n += len(to.ops)
	}
	return n
}
