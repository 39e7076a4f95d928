package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
version: "1.0"
name: hashing
trigger:
  type: cron
  config:
    schedule: "0 9 * * *"
steps:
  - id: digest
    capabilityPath: utilities.crypto.hash
    inputs:
      data: "{{user.email}}"
    outputAs: r
  - id: show
    capabilityPath: data.json.stringify
    inputs:
      data: "{{r}}"
`

const unboundDoc = `
version: "1.0"
name: dangling
steps:
  - id: dump
    capabilityPath: data.json.stringify
    inputs:
      data: "{{missing}}"
`

const unknownCapabilityDoc = `
version: "1.0"
name: typo
steps:
  - id: q
    capabilityPath: data.json.querry
`

type result struct {
	stdout string
	stderr string
	code   int
}

// execute runs the CLI in-process with an empty home directory.
func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	a := newApp()
	a.stdin = strings.NewReader(stdin)
	cmd := newRootCommand(a)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	code := exitCode(cmd.Execute(), &errOut)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidate_ValidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)

	res := execute(t, "", "validate", path)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, symbolOK)
	assert.Contains(t, res.stdout, path)
	assert.Contains(t, res.stdout, `trigger: cron "0 9 * * *", next: `)
	assert.Empty(t, res.stderr)
}

func TestValidate_SchemaViolationFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", "name: x\n")

	res := execute(t, "", "validate", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stdout, symbolError)
	assert.Contains(t, res.stderr, "[schema-violation]")
	assert.NotContains(t, res.stdout, "trigger:")
}

func TestValidate_UnknownCapabilityFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", unknownCapabilityDoc)

	res := execute(t, "", "validate", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "[capability-not-found]")
	assert.Contains(t, res.stderr, "Suggestion:")
}

func TestValidate_DataflowErrorsOnlyFailWhenStrict(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", unboundDoc)

	res := execute(t, "", "validate", path)
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, symbolWarn)
	assert.Contains(t, res.stdout, "1 problem")
	assert.Contains(t, res.stderr, "[unbound-variable]")

	res = execute(t, "", "validate", "--strict", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stdout, symbolError)
}

func TestValidate_Stdin(t *testing.T) {
	res := execute(t, `{"version":"1.0","name":"from-stdin","steps":[{"id":"a","capabilityPath":"utilities.id.uuid"}]}`,
		"validate", "--stdin")
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "from-stdin")

	res = execute(t, "name: x\n", "validate", "--stdin")
	assert.Equal(t, ExitFailed, res.code)
}

func TestValidate_StdinParseError(t *testing.T) {
	res := execute(t, "{not json", "validate", "--stdin")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, stdinLabel)
}

func TestValidate_ArgumentErrors(t *testing.T) {
	cases := map[string][]string{
		"no documents":    {"validate"},
		"stdin and files": {"validate", "--stdin", "a.yaml"},
		"stdin and watch": {"validate", "--stdin", "--watch"},
		"bad format":      {"validate", "--format", "xml", "a.yaml"},
		"missing file":    {"validate", "does-not-exist.yaml"},
		"empty glob":      {"validate", filepath.Join(t.TempDir(), "*.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			res := execute(t, "", args...)
			assert.Equal(t, ExitFailed, res.code)
			assert.NotEmpty(t, res.stderr)
		})
	}
}

func TestValidate_Globs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", validDoc)
	writeFile(t, dir, "nested/b.yaml", validDoc)
	writeFile(t, dir, "nested/deeper/c.yml", unknownCapabilityDoc)

	res := execute(t, "", "validate", filepath.Join(dir, "**", "*.yaml"))
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, 2, strings.Count(res.stdout, symbolOK))

	res = execute(t, "", "validate", filepath.Join(dir, "**", "*.{yaml,yml}"))
	assert.Equal(t, ExitFailed, res.code)
}

func TestExpandArgs_Dedupes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", validDoc)
	b := writeFile(t, dir, "b.yaml", validDoc)

	files, err := expandArgs([]string{b, filepath.Join(dir, "*.yaml")})
	require.NoError(t, err)
	assert.Equal(t, []string{b, a}, files)
}

func TestValidate_JSONFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "flow.yaml", unknownCapabilityDoc)

	res := execute(t, "", "validate", "--format", "json", path)
	assert.Equal(t, ExitFailed, res.code)

	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &rep), res.stdout)
	assert.Equal(t, false, rep["valid"])
	assert.Equal(t, path, rep["document"])
	assert.NotEmpty(t, rep["run_id"])
	diags := rep["diagnostics"].([]any)
	require.Len(t, diags, 1)
	assert.Equal(t, "capability-not-found", diags[0].(map[string]any)["kind"])
	assert.NotContains(t, res.stderr, "capability-not-found", "json reports go to stdout only")

	other := writeFile(t, dir, "other.yaml", validDoc)
	res = execute(t, "", "validate", "-f", "json", path, other)
	var reps []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &reps), res.stdout)
	assert.Len(t, reps, 2)
}

func TestValidate_HelpDescribesStreams(t *testing.T) {
	res := execute(t, "", "validate", "--help")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "except with --format json")
	assert.Contains(t, res.stdout, "--deep runs only on documents without errors")
}

func TestValidate_Deep(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)

	res := execute(t, "", "validate", "--deep", path)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, symbolOK)
}

func TestValidate_DeepSkippedOnDataflowErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", unboundDoc)

	res := execute(t, "", "validate", path)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)

	res = execute(t, "", "validate", "--deep", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "[unbound-variable]")
	assert.Contains(t, res.stderr, "Deep verification skipped")
}

func TestValidate_DeepMissingImplementation(t *testing.T) {
	dir := t.TempDir()
	cat := writeFile(t, dir, "catalog.yaml", `
categories:
  - name: crm
    modules:
      - name: contacts
        functions:
          - name: lookup
`)
	path := writeFile(t, dir, "flow.yaml", `
version: "1.0"
name: crm
steps:
  - id: find
    capabilityPath: crm.contacts.lookup
`)

	res := execute(t, "", "validate", "--catalog", cat, path)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)

	res = execute(t, "", "validate", "--catalog", cat, "--deep", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "[module-load-failed]")
}

func TestValidate_HeuristicSeverityFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", `
version: "1.0"
name: table
steps:
  - id: n
    capabilityPath: data.array.count
outputDisplay:
  type: table
  columns:
    - key: total
      label: Total
`)

	res := execute(t, "", "validate", "--strict", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "[output-shape-heuristic-warning] error")

	res = execute(t, "", "validate", "--strict", "--heuristic-severity", "warning", path)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "[output-shape-heuristic-warning] warning")
}

func TestValidate_RecordAndHistory(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "flowcheck.db")
	good := writeFile(t, dir, "good.yaml", validDoc)
	bad := writeFile(t, dir, "bad.yaml", unknownCapabilityDoc)

	res := execute(t, "", "validate", "--record", "--catalog-db", db, good, bad)
	assert.Equal(t, ExitFailed, res.code)

	res = execute(t, "", "history", "--catalog-db", db, "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 2)

	res = execute(t, "", "history", "--catalog-db", db, "--failed", "--json")
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, bad, runs[0]["document"])
	assert.Equal(t, "builtin", runs[0]["catalog"])

	res = execute(t, "", "history", "--catalog-db", db)
	assert.Contains(t, res.stdout, "DOCUMENT")
	assert.Contains(t, res.stdout, "invalid")
}

func TestValidate_Query(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", unknownCapabilityDoc)
	good := writeFile(t, dir, "good.yaml", validDoc)

	res := execute(t, "", "validate", "-f", "json", "--query", ".diagnostics | map(.kind)", bad)
	assert.Equal(t, ExitFailed, res.code)
	var kinds []string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &kinds), res.stdout)
	assert.Equal(t, []string{"capability-not-found"}, kinds)

	res = execute(t, "", "validate", "-f", "json", "-q", ".[] | select(.valid) | .document", bad, good)
	assert.Equal(t, ExitFailed, res.code)
	assert.Equal(t, `"`+good+`"`+"\n", res.stdout)
}

func TestValidate_QueryErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)

	res := execute(t, "", "validate", "--query", ".valid", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "--query needs --format json")

	res = execute(t, "", "validate", "-f", "json", "--query", ".[", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "jq parse error")
}

func TestHistory_WhereAndQuery(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "flowcheck.db")
	good := writeFile(t, dir, "good.yaml", validDoc)
	bad := writeFile(t, dir, "bad.yaml", unknownCapabilityDoc)

	res := execute(t, "", "validate", "--record", "--catalog-db", db, good, bad)
	require.Equal(t, ExitFailed, res.code)

	res = execute(t, "", "history", "--catalog-db", db, "--json", "--where", `"capability-not-found" in kinds`)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, bad, runs[0]["document"])

	res = execute(t, "", "history", "--catalog-db", db, "--where", "valid && errors == 0")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "good.yaml")
	assert.NotContains(t, res.stdout, "bad.yaml")

	res = execute(t, "", "history", "--catalog-db", db, "--query", "map(.document) | sort")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var docs []string
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &docs), res.stdout)
	expected := []string{bad, good}
	sort.Strings(expected)
	assert.Equal(t, expected, docs)

	res = execute(t, "", "history", "--catalog-db", db, "--where", "document == 'none.yaml'", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "[]\n", res.stdout)

	res = execute(t, "", "history", "--catalog-db", db, "--where", "errors + 1")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "not boolean")
}

func TestValidate_RecordNeedsDatabase(t *testing.T) {
	path := writeFile(t, t.TempDir(), "flow.yaml", validDoc)
	res := execute(t, "", "validate", "--record", path)
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "no catalog database configured")
}

func TestCatalog_ImportListShowDelete(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "flowcheck.db")
	file := writeFile(t, dir, "crm.yaml", `
categories:
  - name: crm
    description: Customer records
    modules:
      - name: contacts
        functions:
          - name: lookup
            signature: "(email: string) -> object"
          - name: create
`)

	res := execute(t, "", "catalog", "import", file, "--catalog-db", db)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Imported crm (2 functions)")

	res = execute(t, "", "catalog", "list", "--catalog-db", db)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "builtin")
	assert.Contains(t, res.stdout, "crm")

	res = execute(t, "", "catalog", "show", "crm.contacts", "--catalog-db", db, "--catalog-snapshot", "crm")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "lookup")
	assert.Contains(t, res.stdout, "(email: string) -> object")

	flow := writeFile(t, dir, "flow.yaml", `
version: "1.0"
name: crm
steps:
  - id: find
    capabilityPath: crm.contacts.lookup
`)
	res = execute(t, "", "validate", "--catalog-db", db, "--catalog-snapshot", "crm", flow)
	assert.Equal(t, ExitSuccess, res.code, res.stderr)

	res = execute(t, "", "catalog", "delete", "crm", "--catalog-db", db)
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = execute(t, "", "catalog", "delete", "crm", "--catalog-db", db)
	assert.Equal(t, ExitFailed, res.code)
}

func TestCatalog_ShowBuiltin(t *testing.T) {
	res := execute(t, "", "catalog", "show", "data", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var file struct {
		Categories []struct {
			Name string `json:"name"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &file))
	require.Len(t, file.Categories, 1)
	assert.Equal(t, "data", file.Categories[0].Name)
}

func TestCatalog_ShowUnknown(t *testing.T) {
	res := execute(t, "", "catalog", "show", "nope")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "Available categories: data, logic, utilities.")

	res = execute(t, "", "catalog", "show", "data.nope")
	assert.Equal(t, ExitFailed, res.code)
	assert.Contains(t, res.stderr, "Available modules: array, json.")
}

func TestSchema_Output(t *testing.T) {
	res := execute(t, "", "schema")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, `"title": "Workflow definition"`)

	res = execute(t, "", "schema", "--report")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "report-v1.json")

	res = execute(t, "", "schema", "--trigger", "cron")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "schedule")

	res = execute(t, "", "schema", "--trigger", "carrier-pigeon")
	assert.Equal(t, ExitFailed, res.code)
}

func TestVersion(t *testing.T) {
	res := execute(t, "", "version")
	assert.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, "dev\n", res.stdout)
}

func TestTriggerSummary(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := map[string]any{
		"trigger": map[string]any{"type": "cron", "config": map[string]any{"schedule": "0 9 * * *"}},
	}
	assert.Equal(t,
		`cron "0 9 * * *", next: 2024-03-02T09:00:00Z, 2024-03-03T09:00:00Z, 2024-03-04T09:00:00Z`,
		triggerSummary(doc, now))

	assert.Equal(t, "manual", triggerSummary(map[string]any{"trigger": map[string]any{"type": "manual"}}, now))
	assert.Empty(t, triggerSummary(map[string]any{"name": "x"}, now))
}
