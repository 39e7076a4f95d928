package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_Mermaid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)

	res := execute(t, "", "graph", path)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "graph TD")
	assert.Contains(t, res.stdout, "%% hashing")
	assert.Contains(t, res.stdout, "digest -.->|r| show")
	assert.Contains(t, res.stdout, "class digest ok")
}

func TestGraph_FindingsOverlay(t *testing.T) {
	res := execute(t, unknownCapabilityDoc, "graph", "--stdin", "--format", "ascii")
	require.Equal(t, ExitSuccess, res.code, "drawing never gates on findings")
	assert.Contains(t, res.stdout, "=== typo ===")
	assert.Contains(t, res.stdout, "[1 ERR]")
	assert.Contains(t, res.stdout, "capability-not-found")

	res = execute(t, unknownCapabilityDoc, "graph", "--stdin", "--format", "ascii", "--findings=false")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.NotContains(t, res.stdout, "ERR")
}

func TestGraph_ImageToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "flow.yaml", validDoc)
	target := filepath.Join(dir, "flow.svg")

	res := execute(t, "", "graph", path, "--format", "svg", "--output", target)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Wrote "+target)

	svg, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}

func TestGraph_ArgumentErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)

	cases := map[string][]string{
		"no document":    {"graph"},
		"stdin and file": {"graph", "--stdin", path},
		"unknown format": {"graph", path, "--format", "gif"},
		"png to stdout":  {"graph", path, "--format", "png"},
		"missing file":   {"graph", filepath.Join(t.TempDir(), "nope.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			res := execute(t, "", args...)
			assert.Equal(t, ExitFailed, res.code)
			assert.NotEmpty(t, res.stderr)
		})
	}
}

func TestGraph_UndrawableDocument(t *testing.T) {
	res := execute(t, "steps: 3\n", "graph", "--stdin")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "cannot draw")
}
