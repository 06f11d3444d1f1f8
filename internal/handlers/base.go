package handlers

import (
	"context"
	"fmt"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

// ModelFactory fills in the category-specific parts of a model. Identity,
// resolution state, implicitness and properties are set by the caller
// afterwards and need not be provided.
type ModelFactory func(it Item) model.Model

const (
	propOriginalItemSpec = "OriginalItemSpec"
	propImplicit         = "IsImplicitlyDefined"
	propDiagnosticLevel  = "DiagnosticLevel"
)

// Base is the template handler shared by most categories. It reads an
// unresolved (evaluation) rule and a resolved (design-time build) rule and
// builds models through a ModelFactory.
type Base struct {
	providerType   string
	unresolvedRule string
	resolvedRule   string
	create         ModelFactory
	env            Env
}

// NewBase returns a template handler. create may only be nil for handlers
// that replace Handle entirely.
func NewBase(env Env, providerType, unresolvedRule, resolvedRule string, create ModelFactory) *Base {
	return &Base{
		providerType:   providerType,
		unresolvedRule: unresolvedRule,
		resolvedRule:   resolvedRule,
		create:         create,
		env:            env.WithDefaults(),
	}
}

func (h *Base) ProviderType() string { return h.providerType }

// Rules returns the unresolved and resolved rule names.
func (h *Base) Rules() (unresolved, resolved string) {
	return h.unresolvedRule, h.resolvedRule
}

// Handle processes the unresolved rule unconditionally, then the resolved
// rule restricted to items whose original item spec is present in the
// unresolved rule's current state. Each processed item yields exactly one
// Added or Removed call.
func (h *Base) Handle(ctx context.Context, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) error {
	if h.create == nil {
		panic(fmt.Sprintf("handlers: %s handler has no model factory and does not override Handle", h.providerType))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unresolved, hasUnresolved := changes.Get(h.unresolvedRule)
	if hasUnresolved {
		h.process(unresolved, false, target, b, func(string) bool { return true })
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if resolved, ok := changes.Get(h.resolvedRule); ok {
		h.process(resolved, true, target, b, unresolved.After.Contains)
	}
	return nil
}

func (h *Base) process(ch rule.Change, resolved bool, target framework.TargetFramework, b *snapshot.ChangeBuilder, shouldProcess func(originalItemSpec string) bool) {
	ruleName := h.unresolvedRule
	if resolved {
		ruleName = h.resolvedRule
	}

	for _, spec := range ch.Difference.Removed {
		isolate(h.env, h.providerType, spec, func() {
			id := spec
			if resolved {
				props, _ := ch.Before.Lookup(spec)
				id = originalItemSpec(spec, props)
			}
			if id == "" || !shouldProcess(id) {
				return
			}
			b.Removed(target, h.providerType, id)
		})
	}

	for _, list := range [][]string{ch.Difference.Added, ch.Difference.Changed} {
		for _, spec := range list {
			isolate(h.env, h.providerType, spec, func() {
				props, _ := ch.After.Lookup(spec)
				it := Item{
					ItemSpec:         spec,
					OriginalItemSpec: spec,
					Properties:       props,
					Resolved:         resolved,
					Implicit:         props.GetBool(propImplicit, false),
					Rule:             ruleName,
				}
				if resolved {
					it.OriginalItemSpec = originalItemSpec(spec, props)
				}
				if it.OriginalItemSpec == "" || !shouldProcess(it.OriginalItemSpec) {
					return
				}
				b.Added(target, h.build(it))
			})
		}
	}
}

// build runs the factory and fills in the fields the template owns.
func (h *Base) build(it Item) model.Model {
	m := h.create(it)
	m.ProviderType = h.providerType
	m.OriginalItemSpec = it.OriginalItemSpec
	m.ID = it.OriginalItemSpec
	m.ItemSpec = it.ItemSpec
	m.Resolved = it.Resolved
	m.Implicit = it.Implicit
	m.Properties = it.Properties
	if it.Resolved && m.Path == "" {
		m.Path = it.ItemSpec
	}
	if m.SchemaName == "" {
		m.SchemaName = it.Rule
	}
	m.DiagnosticLevel = m.DiagnosticLevel.Max(model.ParseDiagnosticLevel(it.Properties.Get(propDiagnosticLevel)))
	if !it.Resolved {
		m.DiagnosticLevel = m.DiagnosticLevel.Max(model.DiagnosticWarning)
	}
	return m
}

// originalItemSpec recovers the declared item behind a resolved item.
func originalItemSpec(spec string, props rule.Properties) string {
	if v := props.Get(propOriginalItemSpec); v != "" {
		return v
	}
	return spec
}
