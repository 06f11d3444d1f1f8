package runtime

import (
	"fmt"

	"github.com/risor-io/risor/object"
)

// --- Map extraction helpers ---

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func getBool(m map[string]object.Object, key string) bool {
	return getBoolDefault(m, key, false)
}

func getBoolDefault(m map[string]object.Object, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	if b, ok := v.(*object.Bool); ok {
		return b.Value()
	}
	return def
}

// getStringList reads a list of strings. Non-string elements are skipped.
func getStringList(m map[string]object.Object, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	l, ok := v.(*object.List)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range l.Value() {
		if s, ok := item.(*object.String); ok {
			out = append(out, s.Value())
		}
	}
	return out
}

// getStringMap reads a map of property values. Non-string values are
// stored in their Go string form.
func getStringMap(m map[string]object.Object, key string) map[string]string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	pm, ok := v.(*object.Map)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(pm.Value()))
	for k, item := range pm.Value() {
		if s, ok := item.(*object.String); ok {
			out[k] = s.Value()
			continue
		}
		out[k] = fmt.Sprint(item.Interface())
	}
	return out
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func stringMap(props map[string]string) *object.Map {
	m := make(map[string]object.Object, len(props))
	for k, v := range props {
		m[k] = object.NewString(v)
	}
	return object.NewMap(m)
}
