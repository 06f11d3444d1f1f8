// Package model describes a single dependency item: its identity, display
// metadata, and tree capability flags.
package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jward/depsnap/internal/framework"
)

// Model is the mutable input from which a Dependency is built. Rule
// handlers fill one in per item and hand it to New.
type Model struct {
	ProviderType     string
	ID               string // defaults to OriginalItemSpec
	Kind             Kind
	OriginalItemSpec string
	ItemSpec         string // raw rule item spec when it differs from ID
	Path             string
	Caption          string
	Version          string
	Resolved         bool
	Implicit         bool
	Transitive       bool
	Hidden           bool
	DiagnosticLevel  DiagnosticLevel
	Properties       map[string]string
	DependencyIDs    []string
	SchemaName       string
	SchemaItemType   string
	ExtraFlags       Flags
}

// Dependency is an immutable dependency item bound to one target framework.
// Copies are made with the With* methods; a Dependency is never modified
// after New returns.
type Dependency struct {
	providerType     string
	id               string
	kind             Kind
	originalItemSpec string
	itemSpec         string
	path             string
	caption          string
	version          string
	resolved         bool
	implicit         bool
	transitive       bool
	visible          bool
	diagnosticLevel  DiagnosticLevel
	properties       map[string]string
	dependencyIDs    []string
	schemaName       string
	schemaItemType   string
	extraFlags       Flags
	flags            Flags
	icons            IconSet
	target           framework.TargetFramework
}

// New builds a Dependency for target t. It panics when the item has no
// OriginalItemSpec or provider type, or when t is empty: those indicate a
// broken rule handler, not bad build data.
func New(m Model, t framework.TargetFramework) *Dependency {
	if m.OriginalItemSpec == "" {
		panic("model: dependency OriginalItemSpec must not be empty")
	}
	if m.ProviderType == "" {
		panic(fmt.Sprintf("model: dependency %q has no provider type", m.OriginalItemSpec))
	}
	if t.IsEmpty() {
		panic(fmt.Sprintf("model: dependency %q has no target framework", m.OriginalItemSpec))
	}

	d := &Dependency{
		providerType:     m.ProviderType,
		id:               m.ID,
		kind:             m.Kind,
		originalItemSpec: m.OriginalItemSpec,
		itemSpec:         m.ItemSpec,
		path:             m.Path,
		caption:          m.Caption,
		version:          m.Version,
		resolved:         m.Resolved,
		implicit:         m.Implicit,
		transitive:       m.Transitive,
		visible:          visibility(m),
		diagnosticLevel:  m.DiagnosticLevel,
		properties:       maps.Clone(m.Properties),
		dependencyIDs:    slices.Clone(m.DependencyIDs),
		schemaName:       m.SchemaName,
		schemaItemType:   m.SchemaItemType,
		extraFlags:       m.ExtraFlags,
		target:           t,
	}
	if d.id == "" {
		d.id = d.originalItemSpec
	}
	if d.itemSpec == "" {
		d.itemSpec = d.id
	}
	if d.caption == "" {
		d.caption = d.id
	}
	if d.properties == nil {
		d.properties = map[string]string{}
	}
	d.flags = FlagsFor(d.kind, d.resolved, d.implicit) | d.extraFlags
	d.icons = IconsFor(d.kind, d.implicit)
	return d
}

// visibility applies the "Visible" property override over the default.
func visibility(m Model) bool {
	for k, v := range m.Properties {
		if strings.EqualFold(k, "Visible") {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return !m.Hidden
}

func (d *Dependency) ProviderType() string { return d.providerType }
func (d *Dependency) ID() string { return d.id }
func (d *Dependency) Kind() Kind { return d.kind }
func (d *Dependency) OriginalItemSpec() string { return d.originalItemSpec }
func (d *Dependency) ItemSpec() string { return d.itemSpec }
func (d *Dependency) Path() string { return d.path }
func (d *Dependency) Caption() string { return d.caption }
func (d *Dependency) Version() string { return d.version }
func (d *Dependency) Resolved() bool { return d.resolved }
func (d *Dependency) Implicit() bool { return d.implicit }
func (d *Dependency) Visible() bool { return d.visible }
func (d *Dependency) DiagnosticLevel() DiagnosticLevel { return d.diagnosticLevel }
func (d *Dependency) Flags() Flags { return d.flags }
func (d *Dependency) Icons() IconSet { return d.icons }
func (d *Dependency) SchemaName() string { return d.schemaName }
func (d *Dependency) SchemaItemType() string { return d.schemaItemType }
func (d *Dependency) TargetFramework() framework.TargetFramework { return d.target }

// TopLevel reports whether the item was declared by the project rather
// than pulled in transitively.
func (d *Dependency) TopLevel() bool { return !d.transitive }

// Property returns the named property. Names compare case-insensitively.
func (d *Dependency) Property(name string) (string, bool) {
	if v, ok := d.properties[name]; ok {
		return v, true
	}
	for k, v := range d.properties {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Properties returns a copy of the property bag.
func (d *Dependency) Properties() map[string]string { return maps.Clone(d.properties) }

// DependencyIDs returns the ids of the items this one depends on, within
// the same provider and target.
func (d *Dependency) DependencyIDs() []string { return slices.Clone(d.dependencyIDs) }

// Key returns the identity of d.
func (d *Dependency) Key() DependencyID {
	return DependencyID{ProviderType: d.providerType, ModelID: d.id}
}

// TreeID is the stable path that identifies the dependency's node in the
// dependencies tree: target\provider\id with forward slashes normalized.
func (d *Dependency) TreeID() string {
	id := strings.ReplaceAll(d.id, "/", `\`)
	return d.target.String() + `\` + strings.ToLower(d.providerType) + `\` + id
}

// Model returns the inputs that rebuild an equal Dependency.
func (d *Dependency) Model() Model {
	return Model{
		ProviderType:     d.providerType,
		ID:               d.id,
		Kind:             d.kind,
		OriginalItemSpec: d.originalItemSpec,
		ItemSpec:         d.itemSpec,
		Path:             d.path,
		Caption:          d.caption,
		Version:          d.version,
		Resolved:         d.resolved,
		Implicit:         d.implicit,
		Transitive:       d.transitive,
		Hidden:           !d.visible,
		DiagnosticLevel:  d.diagnosticLevel,
		Properties:       d.Properties(),
		DependencyIDs:    d.DependencyIDs(),
		SchemaName:       d.schemaName,
		SchemaItemType:   d.schemaItemType,
		ExtraFlags:       d.extraFlags,
	}
}

func (d *Dependency) clone() *Dependency {
	c := *d
	return &c
}

// WithResolved returns a copy with the resolution state (and the flags and
// default diagnostic level that follow from it) replaced.
func (d *Dependency) WithResolved(resolved bool) *Dependency {
	if d.resolved == resolved {
		return d
	}
	c := d.clone()
	c.resolved = resolved
	c.flags = FlagsFor(c.kind, c.resolved, c.implicit) | c.extraFlags
	if !resolved {
		c.diagnosticLevel = c.diagnosticLevel.Max(DiagnosticWarning)
	} else if d.diagnosticLevel == DiagnosticWarning {
		c.diagnosticLevel = DiagnosticNone
	}
	return c
}

// WithDiagnosticLevel returns a copy whose level is raised to l. A lower
// level than the current one is ignored.
func (d *Dependency) WithDiagnosticLevel(l DiagnosticLevel) *Dependency {
	if l <= d.diagnosticLevel {
		return d
	}
	c := d.clone()
	c.diagnosticLevel = l
	return c
}

// Equal reports whether two dependencies carry the same data.
func (d *Dependency) Equal(o *Dependency) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil {
		return false
	}
	return d.providerType == o.providerType &&
		d.id == o.id &&
		d.kind == o.kind &&
		d.originalItemSpec == o.originalItemSpec &&
		d.itemSpec == o.itemSpec &&
		d.path == o.path &&
		d.caption == o.caption &&
		d.version == o.version &&
		d.resolved == o.resolved &&
		d.implicit == o.implicit &&
		d.transitive == o.transitive &&
		d.visible == o.visible &&
		d.diagnosticLevel == o.diagnosticLevel &&
		d.schemaName == o.schemaName &&
		d.schemaItemType == o.schemaItemType &&
		d.flags == o.flags &&
		d.target.Equal(o.target) &&
		maps.Equal(d.properties, o.properties) &&
		slices.Equal(d.dependencyIDs, o.dependencyIDs)
}

func (d *Dependency) String() string {
	return fmt.Sprintf("%s:%s@%s", d.providerType, d.id, d.target)
}

// ViewModel is the presentation data the tree builder needs for one node.
type ViewModel struct {
	Caption         string
	FilePath        string
	Icon            Icon
	ExpandedIcon    Icon
	Flags           Flags
	DiagnosticLevel DiagnosticLevel
	SchemaName      string
	SchemaItemType  string
}

// ViewModel returns the presentation data for d.
func (d *Dependency) ViewModel() ViewModel {
	icon, expanded := d.icons.For(d.resolved)
	return ViewModel{
		Caption:         d.caption,
		FilePath:        d.TreeID(),
		Icon:            icon,
		ExpandedIcon:    expanded,
		Flags:           d.flags,
		DiagnosticLevel: d.diagnosticLevel,
		SchemaName:      d.schemaName,
		SchemaItemType:  d.schemaItemType,
	}
}
