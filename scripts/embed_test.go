package scripts_test

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/depsnap"
	"github.com/jward/depsnap/internal/rule"
	"github.com/jward/depsnap/scripts"
)

const appPath = "/src/app/app.csproj"

func newTestProject(t *testing.T) *depsnap.Project {
	t.Helper()
	e, err := depsnap.New(depsnap.WithScriptsFS(scripts.FS), depsnap.WithTreeRoots(scripts.Roots...))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	p, err := e.Project(appPath)
	require.NoError(t, err)
	return p
}

func tool(t *testing.T, p *depsnap.Project, id string) *depsnap.Dependency {
	t.Helper()
	d, err := p.Query().Lookup("", scripts.ToolDependency, id)
	require.NoError(t, err)
	return d
}

func TestFS_HasHandlerPerRoot(t *testing.T) {
	t.Parallel()
	for _, root := range scripts.Roots {
		_, err := fs.Stat(scripts.FS, "handlers/"+root.ProviderType+".risor")
		assert.NoError(t, err, root.ProviderType)
	}
}

func TestToolHandler_DeclaredThenResolved(t *testing.T) {
	t.Parallel()
	p := newTestProject(t)
	ctx := context.Background()

	_, err := p.Apply(ctx, depsnap.Update{
		Targets: []string{"net8.0"},
		Changes: rule.Changes{
			"DotNetCliToolReference": rule.NewChange(nil, rule.Snapshot{"dotnet-ef": {"Version": "8.0.0"}}),
		},
	})
	require.NoError(t, err)
	d := tool(t, p, "dotnet-ef")
	require.NotNil(t, d)
	assert.False(t, d.Resolved())
	assert.Equal(t, "dotnet-ef (8.0.0)", d.Caption())

	declared := rule.Snapshot{"dotnet-ef": {"Version": "8.0.0"}}
	_, err = p.Apply(ctx, depsnap.Update{
		Changes: rule.Changes{
			"DotNetCliToolReference": rule.NewChange(declared, declared),
			"ResolvedDotNetCliToolReference": rule.NewChange(nil, rule.Snapshot{
				"/tools/dotnet-ef/8.0.0": {"OriginalItemSpec": "dotnet-ef", "Version": "8.0.0", "Path": "/tools/dotnet-ef/8.0.0"},
			}),
		},
	})
	require.NoError(t, err)
	d = tool(t, p, "dotnet-ef")
	require.NotNil(t, d)
	assert.True(t, d.Resolved())
	assert.Equal(t, "/tools/dotnet-ef/8.0.0", d.Path())

	root, _ := p.Tree()
	tools := root.ChildByCaption("Tools")
	require.NotNil(t, tools)
	assert.Equal(t, []string{"dotnet-ef (8.0.0)"}, tools.Captions())
}

func TestToolHandler_ResolvedWithoutDeclarationIsIgnored(t *testing.T) {
	t.Parallel()
	p := newTestProject(t)

	_, err := p.Apply(context.Background(), depsnap.Update{
		Targets: []string{"net8.0"},
		Changes: rule.Changes{
			"ResolvedDotNetCliToolReference": rule.NewChange(nil, rule.Snapshot{
				"/tools/dotnet-ef/8.0.0": {"OriginalItemSpec": "dotnet-ef"},
			}),
		},
	})
	require.NoError(t, err)
	assert.Nil(t, tool(t, p, "dotnet-ef"))
}

func TestToolHandler_ResolvedRemovalFallsBackToDeclaration(t *testing.T) {
	t.Parallel()
	p := newTestProject(t)
	ctx := context.Background()
	declared := rule.Snapshot{"dotnet-ef": {"Version": "8.0.0"}}
	resolved := rule.Snapshot{"/tools/dotnet-ef/8.0.0": {"OriginalItemSpec": "dotnet-ef", "Version": "8.0.0"}}

	_, err := p.Apply(ctx, depsnap.Update{
		Targets: []string{"net8.0"},
		Changes: rule.Changes{
			"DotNetCliToolReference":         rule.NewChange(nil, declared),
			"ResolvedDotNetCliToolReference": rule.NewChange(nil, resolved),
		},
	})
	require.NoError(t, err)
	require.True(t, tool(t, p, "dotnet-ef").Resolved())

	_, err = p.Apply(ctx, depsnap.Update{
		Changes: rule.Changes{
			"DotNetCliToolReference":         rule.NewChange(declared, declared),
			"ResolvedDotNetCliToolReference": rule.NewChange(resolved, nil),
		},
	})
	require.NoError(t, err)
	d := tool(t, p, "dotnet-ef")
	require.NotNil(t, d)
	assert.False(t, d.Resolved())

	_, err = p.Apply(ctx, depsnap.Update{
		Changes: rule.Changes{"DotNetCliToolReference": rule.NewChange(declared, nil)},
	})
	require.NoError(t, err)
	assert.Nil(t, tool(t, p, "dotnet-ef"))
}
