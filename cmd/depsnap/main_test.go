package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/depsnap"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	got := findRepoRoot(root)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	got := findRepoRoot(deep)
	assert.Equal(t, root, got)
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findRepoRoot(dir)
	assert.Equal(t, dir, got)
}

func TestResolveDBPath(t *testing.T) {
	t.Parallel()
	root := "/repo"
	assert.Equal(t, filepath.Join(root, ".depsnap", "depsnap.db"), resolveDBPath(root, ""))
	assert.Equal(t, filepath.Join(root, "data", "x.db"), resolveDBPath(root, "data/x.db"))
	assert.Equal(t, "/abs/x.db", resolveDBPath(root, "/abs/x.db"))
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), `invalid format "xml"`)
}

func TestBatchProjects(t *testing.T) {
	t.Parallel()
	got := batchProjects([]depsnap.Batch{
		{Project: "/src/app/app.csproj"},
		{Project: "/src/lib/lib.csproj"},
		{Project: `\SRC\app\app.csproj`},
		{Project: ""},
	})
	assert.Equal(t, []string{"/src/app/app.csproj", "/src/lib/lib.csproj"}, got)
}

func TestWriteMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "things_total", Help: "things"}, []string{"kind"})
	reg.MustRegister(c)
	c.WithLabelValues("a").Add(3)

	var buf bytes.Buffer
	require.NoError(t, writeMetrics(&buf, reg))
	assert.Equal(t, "things_total{kind=\"a\"} 3\n", buf.String())
}

func TestFormatTreeText_SkipsHiddenSubtrees(t *testing.T) {
	t.Parallel()
	root := &depsnap.Node{Caption: "Dependencies", Visible: true, Children: []*depsnap.Node{
		{Caption: "Packages", Visible: true, Children: []*depsnap.Node{
			{Caption: "Foo (1.0.0)", Visible: true},
			{Caption: "Hidden", Children: []*depsnap.Node{{Caption: "Under hidden", Visible: true}}},
			{Caption: "Bar", Visible: true, DiagnosticLevel: 1},
		}},
	}}

	var buf bytes.Buffer
	formatTreeText(&buf, root)
	assert.Equal(t, "Dependencies\n  Packages\n    Foo (1.0.0)\n    Bar [warning]\n", buf.String())
}

func TestCopyToMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := depsnap.OpenStore(filepath.Join(t.TempDir(), "depsnap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := depsnap.New(depsnap.WithStore(depsnap.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	p, err := e.Project("/src/app/app.csproj")
	require.NoError(t, err)
	snap, err := p.Apply(ctx, depsnap.Update{Targets: []string{"net8.0", "net472"}})
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	mem, err := copyToMemory(ctx, s)
	require.NoError(t, err)
	got, err := mem.LoadSnapshot(ctx, "/src/app/app.csproj")
	require.NoError(t, err)
	assert.True(t, snap.Equal(got))
}
