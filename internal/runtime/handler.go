package runtime

import (
	"context"
	"fmt"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

// ScriptHandler is a handlers.Handler backed by a Risor script. The script
// runs once per target and sees these globals:
//
//	provider_type                 the handler's provider type
//	target                        {name, short_name, full_name}
//	changes                       rule name -> change (see changesObject)
//	add_dependency(map)           records a dependency, returns its id
//	remove_dependency([pt,] id)   records a removal
//	log.Info/Warn/Error(msg)
//
// Output is committed only when the script completes.
type ScriptHandler struct {
	rt           *Runtime
	env          handlers.Env
	providerType string
	path         string
	source       string
}

var _ handlers.Handler = (*ScriptHandler)(nil)

// NewScriptHandler loads the handler script of providerType.
func NewScriptHandler(rt *Runtime, env handlers.Env, providerType string) (*ScriptHandler, error) {
	path := HandlerScriptPath(providerType)
	src, err := rt.LoadScript(path)
	if err != nil {
		return nil, err
	}
	return &ScriptHandler{
		rt:           rt,
		env:          env.WithDefaults(),
		providerType: providerType,
		path:         path,
		source:       src,
	}, nil
}

// LoadScriptHandlers loads one ScriptHandler per script in the handlers
// directory, in name order.
func LoadScriptHandlers(rt *Runtime, env handlers.Env) ([]*ScriptHandler, error) {
	names, err := rt.HandlerScripts()
	if err != nil {
		return nil, err
	}
	out := make([]*ScriptHandler, 0, len(names))
	for _, name := range names {
		h, err := NewScriptHandler(rt, env, name)
		if err != nil {
			return nil, fmt.Errorf("runtime: handler %s: %w", name, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func (h *ScriptHandler) ProviderType() string { return h.providerType }

func (h *ScriptHandler) Handle(ctx context.Context, changes rule.Changes, target framework.TargetFramework, b *snapshot.ChangeBuilder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := snapshot.NewChangeBuilder()
	globals := map[string]any{
		"provider_type":     h.providerType,
		"target":            targetObject(target),
		"changes":           changesObject(changes),
		"add_dependency":    makeAddDependencyFn(h.env, h.providerType, target, out),
		"remove_dependency": makeRemoveDependencyFn(h.providerType, target, out),
	}
	if err := h.rt.eval(ctx, h.source, h.path, globals); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.Merge(out)
	return nil
}
