package handlers

import (
	"context"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

// PackageHandler handles package references. Unlike the template handler
// it processes every resolved item that belongs to the current target, and
// it normalizes the identity of resolved top-level packages to the package
// name so they replace their unresolved counterparts.
type PackageHandler struct {
	env Env
}

// NewPackageHandler returns the package reference handler.
func NewPackageHandler(env Env) *PackageHandler {
	return &PackageHandler{env: env.WithDefaults()}
}

func (h *PackageHandler) ProviderType() string { return model.NuGetDependency }

type packageItem struct {
	spec       string
	kind       model.Kind
	name       string
	version    string
	implicit   bool
	topLevel   bool
	originalID string
}

// Handle implements Handler.
func (h *PackageHandler) Handle(ctx context.Context, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unresolved, _ := changes.Get(PackageReferenceRule)
	names := make(map[string]bool, len(unresolved.After))
	for spec := range unresolved.After {
		names[strings.ToLower(spec)] = true
	}

	h.handleUnresolved(unresolved, target, b)

	if err := ctx.Err(); err != nil {
		return err
	}
	if resolved, ok := changes.Get(ResolvedPackageReferenceRule); ok {
		h.handleResolved(resolved, unresolved, names, target, b)
	}
	return nil
}

func (h *PackageHandler) handleUnresolved(ch rule.Change, target framework.TargetFramework, b *snapshot.ChangeBuilder) {
	for _, spec := range ch.Difference.Removed {
		isolate(h.env, model.NuGetDependency, spec, func() {
			b.Removed(target, model.NuGetDependency, spec)
		})
	}
	for _, list := range [][]string{ch.Difference.Added, ch.Difference.Changed} {
		for _, spec := range list {
			isolate(h.env, model.NuGetDependency, spec, func() {
				props, _ := ch.After.Lookup(spec)
				b.Added(target, h.unresolvedModel(spec, props))
			})
		}
	}
}

func (h *PackageHandler) unresolvedModel(spec string, props rule.Properties) model.Model {
	kind := classify(props, false)
	version := props.Get("Version")
	return model.Model{
		ProviderType:     model.NuGetDependency,
		ID:               spec,
		OriginalItemSpec: spec,
		Kind:             kind,
		Caption:          versionedCaption(spec, version),
		Version:          version,
		Implicit:         props.GetBool(propImplicit, false),
		DiagnosticLevel:  model.DiagnosticWarning.Max(model.ParseDiagnosticLevel(props.Get(propDiagnosticLevel))),
		Properties:       props,
		SchemaName:       PackageReferenceRule,
		SchemaItemType:   PackageReferenceRule,
	}
}

func (h *PackageHandler) handleResolved(ch, unresolved rule.Change, names map[string]bool, target framework.TargetFramework, b *snapshot.ChangeBuilder) {
	for _, spec := range ch.Difference.Removed {
		isolate(h.env, model.NuGetDependency, spec, func() {
			props, _ := ch.Before.Lookup(spec)
			it, ok := h.classifyResolved(spec, props, names, target)
			if !ok {
				return
			}
			b.Removed(target, model.NuGetDependency, it.originalID)
			// The unresolved declaration is still there: fall back to it.
			if it.topLevel && !it.implicit && !listed(unresolved.Difference, it.name) {
				if uprops, ok := unresolved.After.Lookup(it.name); ok {
					b.Added(target, h.unresolvedModel(it.name, uprops))
				}
			}
		})
	}

	for _, spec := range ch.Difference.Added {
		isolate(h.env, model.NuGetDependency, spec, func() {
			props, _ := ch.After.Lookup(spec)
			it, ok := h.classifyResolved(spec, props, names, target)
			if !ok {
				return
			}
			b.Added(target, h.resolvedModel(it, props, target))
		})
	}

	// A changed item may move between identities (raw spec and package
	// name), so the old identity is removed before the new one is added.
	for _, spec := range ch.Difference.Changed {
		isolate(h.env, model.NuGetDependency, spec, func() {
			props, _ := ch.After.Lookup(spec)
			it, ok := h.classifyResolved(spec, props, names, target)
			if !ok {
				return
			}
			old := it.originalID
			if before, ok := ch.Before.Lookup(spec); ok {
				if prev, ok := h.classifyResolved(spec, before, names, target); ok {
					old = prev.originalID
				}
			}
			b.Removed(target, model.NuGetDependency, old)
			if !strings.EqualFold(old, spec) {
				// The entry may still sit under its raw spec from a batch in
				// which it was not declared.
				b.Removed(target, model.NuGetDependency, spec)
			}
			b.Added(target, h.resolvedModel(it, props, target))
		})
	}
}

func listed(d rule.Difference, name string) bool {
	eq := func(s string) bool { return strings.EqualFold(s, name) }
	return slices.ContainsFunc(d.Added, eq) || slices.ContainsFunc(d.Changed, eq) || slices.ContainsFunc(d.Removed, eq)
}

// classifyResolved applies the target filter and derives identity and
// top-level status. Items without a target prefix, or whose prefix names
// another target, are rejected.
func (h *PackageHandler) classifyResolved(spec string, props rule.Properties, names map[string]bool, target framework.TargetFramework) (packageItem, bool) {
	seg, _, ok := strings.Cut(spec, "/")
	if !ok {
		return packageItem{}, false
	}
	tf, ok := h.env.Frameworks.GetTargetFramework(seg)
	if !ok || !tf.Equal(target) {
		return packageItem{}, false
	}

	it := packageItem{
		spec:     spec,
		kind:     classify(props, true),
		name:     props.Get("Name"),
		version:  props.Get("Version"),
		implicit: props.GetBool(propImplicit, false),
	}
	it.topLevel = it.implicit || (it.kind == model.KindPackage && it.name != "" && names[strings.ToLower(it.name)])
	it.originalID = spec
	if it.topLevel && it.name != "" {
		it.originalID = it.name
	}
	return it, true
}

func (h *PackageHandler) resolvedModel(it packageItem, props rule.Properties, target framework.TargetFramework) model.Model {
	seg, _, _ := strings.Cut(it.spec, "/")
	name := it.name
	if name == "" {
		name = it.spec
	}
	caption := versionedCaption(name, normalizeVersion(it.version))
	level := model.ParseDiagnosticLevel(props.Get(propDiagnosticLevel))
	if it.kind == model.KindDiagnostic {
		level = level.Max(model.ParseDiagnosticLevel(props.Get("Severity")))
		if msg := props.Get("Message"); msg != "" {
			caption = msg
		}
	}
	return model.Model{
		ProviderType:     model.NuGetDependency,
		ID:               it.originalID,
		OriginalItemSpec: it.originalID,
		ItemSpec:         it.spec,
		Kind:             it.kind,
		Caption:          caption,
		Version:          it.version,
		Path:             props.Get("Path"),
		Resolved:         true,
		Implicit:         it.implicit,
		Transitive:       !it.topLevel,
		DiagnosticLevel:  level,
		Properties:       props,
		DependencyIDs:    expandDependencies(seg, props.Get("Dependencies")),
		SchemaName:       ResolvedPackageReferenceRule,
		SchemaItemType:   PackageReferenceRule,
	}
}

// classify maps the Type property to a kind.
func classify(props rule.Properties, resolved bool) model.Kind {
	switch k := model.ParseKind(props.Get("Type")); k {
	case model.KindPackage, model.KindAssembly, model.KindFrameworkAssembly, model.KindAnalyzerAssembly, model.KindDiagnostic:
		return k
	}
	if resolved {
		return model.KindUnknown
	}
	return model.KindPackage
}

// expandDependencies turns "A/1.0;B/2.0" into target-qualified ids,
// dropping empty entries and exact duplicates.
func expandDependencies(target, list string) []string {
	var out []string
	for part := range strings.SplitSeq(list, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id := target + "/" + part
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// normalizeVersion renders a parseable version in canonical form and
// leaves ranges and other unparseable strings as they are.
func normalizeVersion(v string) string {
	if v == "" {
		return ""
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return sv.String()
}
