package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/implementations"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

const validFlow = `
version: "1.0"
name: hashing
steps:
  - id: digest
    capabilityPath: utilities.crypto.hash
    inputs: {data: "{{user.email}}"}
    outputAs: r
  - id: show
    capabilityPath: data.json.stringify
    inputs: {data: "{{r}}"}
`

type recordingObserver struct {
	mu            sync.Mutex
	validations   int
	verifications []*validation.VerificationResult
}

func (o *recordingObserver) ObserveValidation(*schema.Result, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.validations++
}

func (o *recordingObserver) ObserveVerification(r *validation.VerificationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifications = append(o.verifications, r)
}

func newTestServer(t *testing.T, mutate ...func(*FlowcheckServerDeps)) *FlowcheckServer {
	t.Helper()
	reg, err := implementations.NewBuiltinRegistry()
	require.NoError(t, err)

	deps := FlowcheckServerDeps{Loader: reg, Logger: logging.Discard()}
	for _, m := range mutate {
		m(&deps)
	}
	s, err := NewFlowcheckServer(deps)
	require.NoError(t, err)
	return s
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}

func decodeReport(t *testing.T, res *mcp.CallToolResult) report.Report {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &rep))
	return rep
}

// --- flowcheck.validate ---

func TestHandleValidate_DocumentText(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{"document": validFlow}))
	require.NoError(t, err)

	rep := decodeReport(t, res)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Diagnostics)
	assert.Equal(t, "hashing", rep.Document)
	assert.NotEmpty(t, rep.RunID)
}

func TestHandleValidate_DefinitionObject(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{
		"definition": map[string]any{
			"version": "1.0",
			"name":    "broken",
			"steps": []any{
				map[string]any{"id": "a", "capabilityPath": "data.json.querry"},
			},
		},
	}))
	require.NoError(t, err)

	rep := decodeReport(t, res)
	assert.False(t, rep.Valid)
	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, "capability-not-found", rep.Diagnostics[0].Kind)
	assert.Equal(t, "steps.a.capabilityPath", rep.Diagnostics[0].Location)
	assert.Contains(t, rep.Diagnostics[0].Suggestion, "query")
}

func TestHandleValidate_MissingInput(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "definition or document is required")

	res, err = s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{"document": "{oops"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleValidate_Observer(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestServer(t, func(d *FlowcheckServerDeps) { d.Observer = obs })

	_, err := s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{"document": validFlow}))
	require.NoError(t, err)
	assert.Equal(t, 1, obs.validations)
	assert.Empty(t, obs.verifications)
}

// --- flowcheck.verify ---

func TestHandleVerify_Passes(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestServer(t, func(d *FlowcheckServerDeps) { d.Observer = obs })

	res, err := s.handleVerify(context.Background(), callReq("flowcheck.verify", map[string]any{"document": validFlow}))
	require.NoError(t, err)

	rep := decodeReport(t, res)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Unverified)
	require.Len(t, obs.verifications, 1)
	assert.True(t, obs.verifications[0].Valid())
}

func TestHandleVerify_ReportsMissingImplementation(t *testing.T) {
	extra, err := catalog.Parse([]byte(`
categories:
  - name: crm
    modules:
      - name: contacts
        functions:
          - name: lookup
`))
	require.NoError(t, err)
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	require.NoError(t, cat.Merge(extra))

	s := newTestServer(t, func(d *FlowcheckServerDeps) { d.Catalog = cat })

	res, err := s.handleVerify(context.Background(), callReq("flowcheck.verify", map[string]any{
		"document": `
version: "1.0"
name: crm
steps:
  - id: find
    capabilityPath: crm.contacts.lookup
`,
		"timeout_ms": float64(2000),
	}))
	require.NoError(t, err)

	rep := decodeReport(t, res)
	assert.False(t, rep.Valid)
	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, "module-load-failed", rep.Diagnostics[0].Kind)
}

func TestHandleVerify_StaticFailureSkipsDeep(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestServer(t, func(d *FlowcheckServerDeps) { d.Observer = obs })

	res, err := s.handleVerify(context.Background(), callReq("flowcheck.verify", map[string]any{"document": "name: x\n"}))
	require.NoError(t, err)

	rep := decodeReport(t, res)
	assert.False(t, rep.Valid)
	for _, d := range rep.Diagnostics {
		assert.Equal(t, "schema-violation", d.Kind)
	}
	assert.Empty(t, obs.verifications)
}

func TestHandleVerify_NotConfigured(t *testing.T) {
	s := newTestServer(t, func(d *FlowcheckServerDeps) { d.Loader = nil })

	res, err := s.handleVerify(context.Background(), callReq("flowcheck.verify", map[string]any{"document": validFlow}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- flowcheck.catalog ---

func TestHandleCatalog_All(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleCatalog(context.Background(), callReq("flowcheck.catalog", nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out struct {
		Categories []catalog.Category `json:"categories"`
		Paths      []string           `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Len(t, out.Categories, 3)
	assert.Contains(t, out.Paths, "data.json.query")
}

func TestHandleCatalog_Narrowed(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleCatalog(context.Background(), callReq("flowcheck.catalog", map[string]any{"category": "data", "module": "json"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var mod catalog.Module
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &mod))
	assert.Equal(t, "json", mod.Name)
	assert.Len(t, mod.Functions, 3)

	res, err = s.handleCatalog(context.Background(), callReq("flowcheck.catalog", map[string]any{"category": "data"}))
	require.NoError(t, err)
	var cat catalog.Category
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &cat))
	assert.Equal(t, "data", cat.Name)
}

func TestHandleCatalog_Unknown(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleCatalog(context.Background(), callReq("flowcheck.catalog", map[string]any{"category": "crm"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "data, logic, utilities")

	res, err = s.handleCatalog(context.Background(), callReq("flowcheck.catalog", map[string]any{"category": "data", "module": "xml"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "array, json")

	res, err = s.handleCatalog(context.Background(), callReq("flowcheck.catalog", map[string]any{"module": "json"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- Reload ---

func TestReloadCatalog(t *testing.T) {
	s := newTestServer(t)

	small, err := catalog.Parse([]byte(`{"categories":[{"name":"crm","modules":[{"name":"contacts","functions":[{"name":"lookup"}]}]}]}`))
	require.NoError(t, err)
	require.NoError(t, s.ReloadCatalog(small))

	res, err := s.handleValidate(context.Background(), callReq("flowcheck.validate", map[string]any{"document": validFlow}))
	require.NoError(t, err)
	rep := decodeReport(t, res)
	assert.False(t, rep.Valid)
	assert.Len(t, rep.Diagnostics, 2)
}
