package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/pkg/schema"
)

func mustPath(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestParsePath_Valid(t *testing.T) {
	p := mustPath(t, "data.json.query")
	assert.Equal(t, Path{Category: "data", Module: "json", Function: "query"}, p)
	assert.Equal(t, "data.json.query", p.String())
}

func TestParsePath_Invalid(t *testing.T) {
	for _, s := range []string{"data.json", "data.json.query.extra", "Data.json.query", "data..query", "data.json.Query_x"} {
		_, err := ParsePath(s)
		assert.Error(t, err, s)
	}
}

func TestCatalog_Register_Success(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(mustPath(t, "data.json.query"), Function{Description: "jq"}))

	assert.Equal(t, 1, c.Count())
	assert.True(t, c.Has("data.json.query"))

	fn, ok := c.Lookup("data.json.query")
	require.True(t, ok)
	assert.Equal(t, "query", fn.Name)
	assert.Equal(t, "jq", fn.Description)
}

func TestCatalog_Register_Duplicate(t *testing.T) {
	c := New()
	p := mustPath(t, "data.json.query")
	require.NoError(t, c.Register(p, Function{}))

	err := c.Register(p, Function{})
	require.Error(t, err)

	var fErr *schema.Error
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, schema.ErrCodeConflict, fErr.Code)
}

func TestCatalog_Register_NameMismatch(t *testing.T) {
	c := New()
	err := c.Register(mustPath(t, "data.json.query"), Function{Name: "parse"})
	require.Error(t, err)

	var fErr *schema.Error
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, schema.ErrCodeCatalog, fErr.Code)
}

func TestCatalog_Register_BadSegment(t *testing.T) {
	c := New()
	err := c.Register(Path{Category: "Data", Module: "json", Function: "query"}, Function{})
	assert.Error(t, err)
}

func TestCatalog_Listing(t *testing.T) {
	c := New()
	for _, p := range []string{"data.json.query", "data.json.parse", "data.array.count", "utilities.id.uuid"} {
		require.NoError(t, c.Register(mustPath(t, p), Function{}))
	}

	assert.Equal(t, []string{"data", "utilities"}, c.Categories())

	mods, ok := c.Modules("data")
	require.True(t, ok)
	assert.Equal(t, []string{"array", "json"}, mods)

	_, ok = c.Modules("nope")
	assert.False(t, ok)

	fns, ok := c.Functions("data", "json")
	require.True(t, ok)
	assert.Equal(t, []string{"parse", "query"}, fns)

	_, ok = c.Functions("data", "nope")
	assert.False(t, ok)
	_, ok = c.Functions("nope", "json")
	assert.False(t, ok)

	assert.Equal(t, []string{"data.array.count", "data.json.parse", "data.json.query", "utilities.id.uuid"}, c.Paths())
}

func TestCatalog_LookupMalformed(t *testing.T) {
	c := New()
	_, ok := c.Lookup("not-a-path")
	assert.False(t, ok)
}

func TestCatalog_AddCategory_RejectsEmptyModule(t *testing.T) {
	c := New()
	err := c.AddCategory(Category{Name: "data", Modules: []Module{{Name: "json"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no functions")

	err = c.AddCategory(Category{Name: ""})
	assert.Error(t, err)
}

func TestCatalog_TreeKeepsDescriptions(t *testing.T) {
	c, err := FromTree([]Category{{
		Name:        "data",
		Description: "Data things",
		Modules: []Module{{
			Name:        "json",
			Description: "JSON things",
			Functions:   []Function{{Name: "query", Signature: "(data, filter) -> any"}},
		}},
	}})
	require.NoError(t, err)

	tree := c.Tree()
	require.Len(t, tree, 1)
	assert.Equal(t, "Data things", tree[0].Description)
	require.Len(t, tree[0].Modules, 1)
	assert.Equal(t, "JSON things", tree[0].Modules[0].Description)
	assert.Equal(t, "(data, filter) -> any", tree[0].Modules[0].Functions[0].Signature)
}

func TestCatalog_Merge(t *testing.T) {
	a := New()
	require.NoError(t, a.Register(mustPath(t, "data.json.query"), Function{}))
	b := New()
	require.NoError(t, b.Register(mustPath(t, "crm.contacts.lookup"), Function{}))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, 2, a.Count())
	assert.True(t, a.Has("crm.contacts.lookup"))

	require.Error(t, a.Merge(b), "merging the same function twice conflicts")
	require.NoError(t, a.Merge(nil))
}

func TestCatalog_ConcurrentReads(t *testing.T) {
	c, err := Builtin()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.Has("data.json.query"))
			assert.NotEmpty(t, c.Paths())
		}()
	}
	wg.Wait()
}

func TestBuiltin_IndependentCopies(t *testing.T) {
	a, err := Builtin()
	require.NoError(t, err)
	b, err := Builtin()
	require.NoError(t, err)

	require.NoError(t, a.Register(mustPath(t, "extra.mod.fn"), Function{}))
	assert.False(t, b.Has("extra.mod.fn"))
	assert.Equal(t, []string{"data", "logic", "utilities"}, b.Categories())
}

func TestParse_YAML(t *testing.T) {
	c, err := Parse([]byte(`
categories:
  - name: crm
    modules:
      - name: contacts
        functions:
          - name: lookup
            signature: "(email: string) -> object"
`))
	require.NoError(t, err)
	fn, ok := c.Lookup("crm.contacts.lookup")
	require.True(t, ok)
	assert.Equal(t, "(email: string) -> object", fn.Signature)
}

func TestParse_JSON(t *testing.T) {
	c, err := Parse([]byte(`  {"categories":[{"name":"crm","modules":[{"name":"contacts","functions":[{"name":"lookup"}]}]}]}`))
	require.NoError(t, err)
	assert.True(t, c.Has("crm.contacts.lookup"))
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(`{"categories":[],"extra":1}`))
	assert.Error(t, err)

	_, err = Parse([]byte("categories:\n  - name: crm\n    colour: red\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse([]byte("   "))
	assert.Error(t, err)

	_, err = Parse([]byte("categories: []\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  - name: crm
    modules:
      - name: contacts
        functions:
          - name: lookup
`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, c.Has("crm.contacts.lookup"))

	_, err = LoadFile(filepath.Join(dir, "catalog.toml"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestCatalog_MarshalJSONRoundTrip(t *testing.T) {
	orig, err := Builtin()
	require.NoError(t, err)

	b, err := orig.MarshalJSON()
	require.NoError(t, err)

	back, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, orig.Paths(), back.Paths())
}
