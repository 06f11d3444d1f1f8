package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/depsnap/internal/framework"
	"github.com/jward/depsnap/internal/handlers"
	"github.com/jward/depsnap/internal/metrics"
	"github.com/jward/depsnap/internal/model"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/internal/snapshot"
)

var net8 = framework.TargetFramework{FullName: ".NETCoreApp,Version=v8.0", ShortName: "net8.0"}

const customHandler = `
c := changes["CustomReference"]
for _, item := range c["added"] {
    props := item["properties"]
    add_dependency({
        "original_item_spec": item["item_spec"],
        "caption": props["Name"],
        "version": props["Version"],
        "kind": "Package",
        "resolved": true,
        "properties": props,
        "dependency_ids": ["Bar"],
    })
}
for _, item := range c["removed"] {
    remove_dependency(item["item_spec"])
}
assert(target.short_name == "net8.0", 'unexpected target {target.short_name}')
assert(provider_type == "CustomDependency", 'unexpected provider {provider_type}')
`

func customChanges() rule.Changes {
	return rule.Changes{
		"CustomReference": rule.NewChange(
			rule.Snapshot{"Old": {"Name": "Old"}},
			rule.Snapshot{"Foo": {"Name": "Foo", "Version": "1.2.0"}},
		),
	}
}

func newScriptHandler(t *testing.T, source string, env handlers.Env) *ScriptHandler {
	t.Helper()
	mapFS := fstest.MapFS{
		"handlers/CustomDependency.risor": &fstest.MapFile{Data: []byte(source)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))
	h, err := NewScriptHandler(rt, env, "CustomDependency")
	require.NoError(t, err)
	return h
}

// --- Script loading ---

func TestRunSource_Globals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	err := rt.RunSource(context.Background(), `
assert(answer == 42, 'expected 42, got {answer}')
log.Info("hello")
`, map[string]any{"answer": int64(42)})
	require.NoError(t, err)
}

func TestRunSource_ErrorIsWrapped(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	err := rt.RunSource(context.Background(), `assert(false, "boom")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime: script <inline>")
}

func TestRunScript_LoadsFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`result := 1 + 1`), 0644))

	rt := NewRuntime(dir)
	require.NoError(t, rt.RunScript(context.Background(), "test.risor", nil))
}

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(t.TempDir())
	err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestLoadScript_FromFS_StripsLeadingSeparator(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"handlers/x.risor": &fstest.MapFile{Data: []byte(`y := 99`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("/handlers/x.risor")
	require.NoError(t, err)
	assert.Equal(t, `y := 99`, got)

	_, err = rt.LoadScript("missing.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestImport_FSImporter(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func caption(name, version) {
	return name + " (" + version + ")"
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	err := rt.RunSource(context.Background(), `
import lib_helpers

msg := lib_helpers.caption("Foo", "1.0.0")
assert(msg == "Foo (1.0.0)", 'unexpected caption ' + msg)
`, nil)
	require.NoError(t, err)
}

func TestHandlerScriptPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, filepath.Join("handlers", "ComDependency.risor"), HandlerScriptPath("ComDependency"))
}

func TestHandlerScripts(t *testing.T) {
	t.Parallel()
	mapFS := fstest.MapFS{
		"handlers/ZDependency.risor": &fstest.MapFile{Data: []byte(``)},
		"handlers/ADependency.risor": &fstest.MapFile{Data: []byte(``)},
		"handlers/notes.txt":         &fstest.MapFile{Data: []byte(``)},
		"lib.risor":                  &fstest.MapFile{Data: []byte(``)},
	}
	names, err := NewRuntime("", WithRuntimeFS(mapFS)).HandlerScripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"ADependency", "ZDependency"}, names)

	names, err = NewRuntime(t.TempDir()).HandlerScripts()
	require.NoError(t, err)
	assert.Empty(t, names)

	names, err = NewRuntime("").HandlerScripts()
	require.NoError(t, err)
	assert.Nil(t, names)
}

// --- Script handlers ---

func TestScriptHandler_AddsAndRemoves(t *testing.T) {
	t.Parallel()
	h := newScriptHandler(t, customHandler, handlers.Env{})
	assert.Equal(t, "CustomDependency", h.ProviderType())

	b := snapshot.NewChangeBuilder()
	require.NoError(t, h.Handle(context.Background(), customChanges(), net8, b))

	ops := b.Ops(net8)
	require.Len(t, ops, 2)
	assert.Equal(t, snapshot.OpAdd, ops[0].Kind)
	d := ops[0].Dependency
	assert.Equal(t, "CustomDependency", d.ProviderType())
	assert.Equal(t, "Foo", d.ID())
	assert.Equal(t, "1.2.0", d.Version())
	assert.Equal(t, model.KindPackage, d.Kind())
	assert.True(t, d.Resolved())
	assert.Equal(t, []string{"Bar"}, d.DependencyIDs())
	name, _ := d.Property("Name")
	assert.Equal(t, "Foo", name)

	assert.Equal(t, snapshot.OpRemove, ops[1].Kind)
	assert.Equal(t, model.DependencyID{ProviderType: "CustomDependency", ModelID: "Old"}, ops[1].Key())
}

func TestScriptHandler_ChangedItemsSeeBefore(t *testing.T) {
	t.Parallel()
	h := newScriptHandler(t, `
c := changes["CustomReference"]
assert(len(c["changed"]) == 1, 'expected 1 changed, got {len(c["changed"])}')
item := c["changed"][0]
assert(item["before"]["Version"] == "1.0.0", "before")
assert(item["properties"]["Version"] == "2.0.0", "after")
assert(len(c["after"]) == 1, "after snapshot")
`, handlers.Env{})

	changes := rule.Changes{
		"CustomReference": rule.NewChange(
			rule.Snapshot{"Foo": {"Version": "1.0.0"}},
			rule.Snapshot{"Foo": {"Version": "2.0.0"}},
		),
	}
	b := snapshot.NewChangeBuilder()
	require.NoError(t, h.Handle(context.Background(), changes, net8, b))
	assert.True(t, b.Empty())
}

func TestScriptHandler_SkipsInvalidItem(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	h := newScriptHandler(t, `
skipped := add_dependency({"caption": "no spec"})
assert(skipped == nil, "invalid item should be skipped")
id := add_dependency({"original_item_spec": "Broken", "visible": false})
assert(id == "Broken", 'unexpected id {id}')
`, handlers.Env{Metrics: m})

	b := snapshot.NewChangeBuilder()
	require.NoError(t, h.Handle(context.Background(), nil, net8, b))

	ops := b.Ops(net8)
	require.Len(t, ops, 1)
	d := ops[0].Dependency
	assert.False(t, d.Visible())
	assert.False(t, d.Resolved())
	assert.Equal(t, model.DiagnosticWarning, d.DiagnosticLevel(), "unresolved items carry at least a warning")
	n, err := testutil.GatherAndCount(reg, "depsnap_handler_items_skipped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScriptHandler_FailureDiscardsOutput(t *testing.T) {
	t.Parallel()
	h := newScriptHandler(t, `
add_dependency({"original_item_spec": "Foo"})
add_dependency("not a map")
`, handlers.Env{})

	b := snapshot.NewChangeBuilder()
	err := h.Handle(context.Background(), nil, net8, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add_dependency")
	assert.True(t, b.Empty())
}

func TestScriptHandler_Cancelled(t *testing.T) {
	t.Parallel()
	h := newScriptHandler(t, customHandler, handlers.Env{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := snapshot.NewChangeBuilder()
	err := h.Handle(ctx, customChanges(), net8, b)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, b.Empty())
}

func TestScriptHandler_InRegistry(t *testing.T) {
	t.Parallel()
	h := newScriptHandler(t, customHandler, handlers.Env{})
	broken := newScriptHandler(t, `x := undefined_name`, handlers.Env{})
	broken.providerType = "BrokenDependency"

	reg := handlers.NewRegistry(handlers.Env{}, broken, h)
	b := snapshot.NewChangeBuilder()
	require.NoError(t, reg.Handle(context.Background(), customChanges(), net8, b))

	assert.Equal(t, []string{"CustomDependency"}, b.Providers(), "a failing script is skipped")
	assert.Equal(t, 2, b.Len())
}

func TestLoadScriptHandlers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, HandlersDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HandlersDir, "CustomDependency.risor"), []byte(customHandler), 0644))

	hs, err := LoadScriptHandlers(NewRuntime(dir), handlers.Env{})
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, "CustomDependency", hs[0].ProviderType())

	b := snapshot.NewChangeBuilder()
	require.NoError(t, hs[0].Handle(context.Background(), customChanges(), net8, b))
	assert.Equal(t, 2, b.Len())
}
