package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

// targetObject exposes a target framework to scripts.
//
// target.name, target.short_name, target.full_name
func targetObject(t framework.TargetFramework) *object.Map {
	return object.NewMap(map[string]object.Object{
		"name":       object.NewString(t.String()),
		"short_name": object.NewString(t.ShortName),
		"full_name":  object.NewString(t.FullName),
	})
}

// changesObject exposes rule changes to scripts:
//
//	changes[rule] = {
//	    "added":   [{"item_spec", "properties"}],
//	    "changed": [{"item_spec", "properties", "before"}],
//	    "removed": [{"item_spec", "properties"}],   // properties from before
//	    "before":  {item_spec: properties},
//	    "after":   {item_spec: properties},
//	}
func changesObject(changes rule.Changes) *object.Map {
	out := make(map[string]object.Object, len(changes))
	for _, name := range changes.Rules() {
		c := changes[name]
		item := func(spec string, props rule.Properties) map[string]object.Object {
			return map[string]object.Object{
				"item_spec":  object.NewString(spec),
				"properties": stringMap(props),
			}
		}

		added := make([]object.Object, 0, len(c.Difference.Added))
		for _, spec := range c.Difference.Added {
			added = append(added, object.NewMap(item(spec, c.After[spec])))
		}
		changed := make([]object.Object, 0, len(c.Difference.Changed))
		for _, spec := range c.Difference.Changed {
			m := item(spec, c.After[spec])
			m["before"] = stringMap(c.Before[spec])
			changed = append(changed, object.NewMap(m))
		}
		removed := make([]object.Object, 0, len(c.Difference.Removed))
		for _, spec := range c.Difference.Removed {
			removed = append(removed, object.NewMap(item(spec, c.Before[spec])))
		}

		out[name] = object.NewMap(map[string]object.Object{
			"added":   object.NewList(added),
			"changed": object.NewList(changed),
			"removed": object.NewList(removed),
			"before":  snapshotObject(c.Before),
			"after":   snapshotObject(c.After),
		})
	}
	return object.NewMap(out)
}

func snapshotObject(s rule.Snapshot) *object.Map {
	specs := make([]string, 0, len(s))
	for spec := range s {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	m := make(map[string]object.Object, len(s))
	for _, spec := range specs {
		m[spec] = stringMap(s[spec])
	}
	return object.NewMap(m)
}

// makeAddDependencyFn creates the "add_dependency" host function. Risor
// scripts cannot construct Go structs, so it accepts a map and builds the
// model Go-side. An item without original_item_spec is logged and skipped.
//
// add_dependency({"original_item_spec": ..., "caption": ..., ...}) → id or nil
func makeAddDependencyFn(env handlers.Env, providerType string, target framework.TargetFramework, b *snapshot.ChangeBuilder) *object.Builtin {
	return object.NewBuiltin("add_dependency", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("add_dependency", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("add_dependency: %v", err)
		}

		md := model.Model{
			ProviderType:     getStringDefault(m, "provider_type", providerType),
			ID:               getString(m, "id"),
			Kind:             model.ParseKind(getString(m, "kind")),
			OriginalItemSpec: getString(m, "original_item_spec"),
			ItemSpec:         getString(m, "item_spec"),
			Path:             getString(m, "path"),
			Caption:          getString(m, "caption"),
			Version:          getString(m, "version"),
			Resolved:         getBool(m, "resolved"),
			Implicit:         getBool(m, "implicit"),
			Transitive:       getBool(m, "transitive"),
			Hidden:           !getBoolDefault(m, "visible", true),
			DiagnosticLevel:  model.ParseDiagnosticLevel(getString(m, "diagnostic_level")),
			Properties:       getStringMap(m, "properties"),
			DependencyIDs:    getStringList(m, "dependency_ids"),
			SchemaName:       getString(m, "schema_name"),
			SchemaItemType:   getString(m, "schema_item_type"),
		}
		if md.OriginalItemSpec == "" {
			md.OriginalItemSpec = md.ID
		}
		if md.OriginalItemSpec == "" {
			skip(env, md.ProviderType, "", "add_dependency: missing original_item_spec")
			return object.Nil
		}
		if !md.Resolved {
			md.DiagnosticLevel = md.DiagnosticLevel.Max(model.DiagnosticWarning)
		}

		d, perr := build(md, target)
		if perr != nil {
			skip(env, md.ProviderType, md.OriginalItemSpec, perr.Error())
			return object.Nil
		}
		b.AddedDependency(d)
		return object.NewString(d.ID())
	})
}

func build(m model.Model, target framework.TargetFramework) (d *model.Dependency, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return model.New(m, target), nil
}

func skip(env handlers.Env, provider, itemSpec, reason string) {
	env.Log.WithFields(logrus.Fields{
		"provider":  provider,
		"item_spec": itemSpec,
	}).Warnf("runtime: skipping item: %s", reason)
	env.Metrics.ItemSkipped(provider)
}

// makeRemoveDependencyFn creates the "remove_dependency" host function.
//
// remove_dependency(id) or remove_dependency(provider_type, id)
func makeRemoveDependencyFn(providerType string, target framework.TargetFramework, b *snapshot.ChangeBuilder) *object.Builtin {
	return object.NewBuiltin("remove_dependency", func(ctx context.Context, args ...object.Object) object.Object {
		var pt, id string
		switch len(args) {
		case 1:
			s, err := toString(args[0])
			if err != nil {
				return object.Errorf("remove_dependency: id: %v", err)
			}
			pt, id = providerType, s
		case 2:
			p, err := toString(args[0])
			if err != nil {
				return object.Errorf("remove_dependency: provider_type: %v", err)
			}
			s, err := toString(args[1])
			if err != nil {
				return object.Errorf("remove_dependency: id: %v", err)
			}
			pt, id = p, s
		default:
			return object.NewArgsRangeError("remove_dependency", 1, 2, len(args))
		}
		if id == "" {
			return object.Nil
		}
		b.Removed(target, pt, id)
		return object.Nil
	})
}
