package rule

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties(t *testing.T) {
	t.Parallel()
	p := Properties{"IsImplicitlyDefined": "True", "Name": "Foo"}

	assert.Equal(t, "Foo", p.Get("name"))
	assert.Equal(t, "", p.Get("Missing"))
	assert.True(t, p.GetBool("isimplicitlydefined", false))
	assert.True(t, p.GetBool("Missing", true))
	assert.False(t, Properties{"x": "garbage"}.GetBool("x", false))
}

func TestSnapshot_Lookup(t *testing.T) {
	t.Parallel()
	s := Snapshot{"Foo": {"a": "1"}}
	p, ok := s.Lookup("FOO")
	require.True(t, ok)
	assert.Equal(t, "1", p["a"])
	assert.False(t, s.Contains("Bar"))
}

func TestDiff(t *testing.T) {
	t.Parallel()
	before := Snapshot{
		"a": {"v": "1"},
		"b": {"v": "1"},
		"c": {"v": "1"},
	}
	after := Snapshot{
		"a": {"v": "1"},
		"b": {"v": "2"},
		"e": {},
		"d": {},
	}
	d := Diff(before, after)
	assert.Equal(t, []string{"d", "e"}, d.Added)
	assert.Equal(t, []string{"c"}, d.Removed)
	assert.Equal(t, []string{"b"}, d.Changed)
	assert.True(t, d.AnyChanges())

	assert.False(t, Diff(after, after).AnyChanges())
}

func TestDecodeBatches_JSON(t *testing.T) {
	t.Parallel()
	src := `{"batches":[{"project":"a.csproj","target":"net8.0",
	  "changes":{"PackageReference":{"after":{"Foo":{"Version":"1.0.0"}}}}}]}`

	batches, err := DecodeBatches(strings.NewReader(src), "json")
	require.NoError(t, err)
	require.Len(t, batches, 1)

	ch := batches[0].Changes["PackageReference"]
	assert.Equal(t, []string{"Foo"}, ch.Difference.Added, "difference computed when absent")
	assert.Equal(t, "1.0.0", ch.After["Foo"].Get("Version"))
}

func TestDecodeBatches_YAML(t *testing.T) {
	t.Parallel()
	src := `
batches:
  - project: a.csproj
    targets: [net8.0, net472]
    active_target: net8.0
    per_target:
      net472:
        AssemblyReference:
          after:
            System.Xml: {}
          difference:
            added: [System.Xml]
`
	batches, err := DecodeBatches(strings.NewReader(src), "yaml")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, []string{"net8.0", "net472"}, b.Targets)
	assert.Equal(t, "net8.0", b.ActiveTarget)
	assert.Equal(t, []string{"System.Xml"}, b.PerTarget["net472"]["AssemblyReference"].Difference.Added)
}

func TestDecodeBatches_Errors(t *testing.T) {
	t.Parallel()
	_, err := DecodeBatches(strings.NewReader("{"), "json")
	assert.Error(t, err)
	_, err = DecodeBatches(strings.NewReader(""), "toml")
	assert.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "yaml", FormatForPath("x/batches.YML"))
	assert.Equal(t, "json", FormatForPath("batches.json"))
}
