// Package tree projects a dependency snapshot into the dependencies tree
// shown by an IDE and computes the edits from the previous tree.
package tree

import (
	"slices"
	"strings"

	"github.com/jward/depsnap/internal/model"
)

// Node is one node of the dependencies tree. Nodes are treated as
// immutable: Build returns new nodes for anything that changed and reuses
// the previous ones otherwise.
type Node struct {
	Caption         string                `json:"caption"`
	FilePath        string                `json:"file_path,omitempty"`
	Icon            model.Icon            `json:"icon,omitempty"`
	ExpandedIcon    model.Icon            `json:"expanded_icon,omitempty"`
	Flags           model.Flags           `json:"flags"`
	ProviderType    string                `json:"provider_type,omitempty"`
	Target          string                `json:"target,omitempty"`
	Visible         bool                  `json:"visible"`
	DiagnosticLevel model.DiagnosticLevel `json:"diagnostic_level"`
	Children        []*Node               `json:"children,omitempty"`
}

// sameFields compares everything but the children.
func (n *Node) sameFields(o *Node) bool {
	return n.Caption == o.Caption &&
		n.FilePath == o.FilePath &&
		n.Icon == o.Icon &&
		n.ExpandedIcon == o.ExpandedIcon &&
		n.Flags == o.Flags &&
		n.ProviderType == o.ProviderType &&
		n.Target == o.Target &&
		n.Visible == o.Visible &&
		n.DiagnosticLevel == o.DiagnosticLevel
}

// Find returns the first descendant (or n itself) for which match is true,
// searching depth first.
func (n *Node) Find(match func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for _, c := range n.Children {
		if f := c.Find(match); f != nil {
			return f
		}
	}
	return nil
}

// ChildByCaption returns the direct child with the given caption.
func (n *Node) ChildByCaption(caption string) *Node {
	for _, c := range n.Children {
		if c.Caption == caption {
			return c
		}
	}
	return nil
}

// Captions returns the captions of the direct children in order.
func (n *Node) Captions() []string {
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.Caption
	}
	return out
}

// Walk visits n and its descendants depth first with their depth.
func (n *Node) Walk(fn func(depth int, n *Node)) {
	var walk func(int, *Node)
	walk = func(d int, x *Node) {
		fn(d, x)
		for _, c := range x.Children {
			walk(d+1, c)
		}
	}
	if n != nil {
		walk(0, n)
	}
}

// EditKind classifies an Edit.
type EditKind int

const (
	EditAdd EditKind = iota
	EditRemove
	EditUpdate
)

func (k EditKind) String() string {
	switch k {
	case EditRemove:
		return "remove"
	case EditUpdate:
		return "update"
	default:
		return "add"
	}
}

// Edit is one change between two trees. Path holds the captions from the
// root down to the edited node. For EditAdd the Node carries the whole new
// subtree; for EditRemove it is the removed node.
type Edit struct {
	Kind EditKind `json:"kind"`
	Path []string `json:"path"`
	Node *Node    `json:"-"`
}

func (e Edit) String() string {
	return e.Kind.String() + " " + strings.Join(e.Path, "/")
}

// ProviderRoot describes the grouping node of one provider type.
type ProviderRoot struct {
	ProviderType string
	Caption      string
	Icon         model.Icon
}

// DefaultProviderRoots are the grouping nodes of the built-in providers in
// display order.
var DefaultProviderRoots = []ProviderRoot{
	{ProviderType: model.FrameworkDependency, Caption: "Frameworks", Icon: "Framework"},
	{ProviderType: model.SdkDependency, Caption: "SDK", Icon: "Sdk"},
	{ProviderType: model.AnalyzerDependency, Caption: "Analyzers", Icon: "CodeInformation"},
	{ProviderType: model.AssemblyDependency, Caption: "Assemblies", Icon: "Reference"},
	{ProviderType: model.ComDependency, Caption: "COM", Icon: "Component"},
	{ProviderType: model.NuGetDependency, Caption: "Packages", Icon: "NuGetPackage"},
	{ProviderType: model.ProjectDependency, Caption: "Projects", Icon: "Application"},
}

func providerIndex(roots []ProviderRoot, providerType string) int {
	return slices.IndexFunc(roots, func(r ProviderRoot) bool {
		return strings.EqualFold(r.ProviderType, providerType)
	})
}
