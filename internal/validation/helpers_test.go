package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

func parseDoc(t *testing.T, src string) any {
	t.Helper()
	var doc any
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return doc
}

func builtinCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Builtin()
	require.NoError(t, err)
	return c
}

func newValidator(t *testing.T, opts ...Option) *Validator {
	t.Helper()
	v, err := NewValidator(builtinCatalog(t), opts...)
	require.NoError(t, err)
	return v
}

func locations(diags []schema.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Location)
	}
	return out
}

func findDiag(diags []schema.Diagnostic, location string) (schema.Diagnostic, bool) {
	for _, d := range diags {
		if d.Location == location {
			return d, true
		}
	}
	return schema.Diagnostic{}, false
}

func mustCatalog(t *testing.T, src string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(src))
	require.NoError(t, err)
	return c
}
