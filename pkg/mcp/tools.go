package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/validation"
)

// handleValidate runs the static passes over a definition.
func (s *FlowcheckServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := documentArg(req)
	if errResult != nil {
		return errResult, nil
	}

	_, v := s.current()
	ctx, runID := logging.NewRun(ctx)
	name := validation.DocumentName(doc)
	ctx = logging.WithDocument(ctx, name)

	out := v.Check(ctx, doc, nil)
	logging.LogWith(ctx, s.logger).Info("validate tool",
		slog.Bool("valid", out.Valid()),
		slog.Int("diagnostics", len(out.Result.Diagnostics)))

	rep := report.New(name, out.Result, nil)
	rep.RunID = runID
	return marshalResult(rep)
}

// handleVerify runs the static passes and, when they pass, deep verification.
func (s *FlowcheckServer) handleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.verifier == nil {
		return mcp.NewToolResultError("deep verification is not configured on this server"), nil
	}
	doc, errResult := documentArg(req)
	if errResult != nil {
		return errResult, nil
	}

	timeout := s.deps.DeepTimeout
	if ms := req.GetFloat("timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	_, v := s.current()
	ctx, runID := logging.NewRun(ctx)
	name := validation.DocumentName(doc)
	ctx = logging.WithDocument(ctx, name)

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := v.Check(vctx, doc, s.verifier)
	if out.Verification != nil && s.deps.Observer != nil {
		s.deps.Observer.ObserveVerification(out.Verification)
	}
	logging.LogWith(ctx, s.logger).Info("verify tool",
		slog.Bool("valid", out.Valid()),
		slog.Bool("deep", out.Verification != nil),
		slog.Bool("deep_skipped", out.DeepSkipped),
		slog.Int("unverified", len(out.Unverified())))

	rep := report.New(name, out.Result, out.Unverified())
	rep.RunID = runID
	return marshalResult(rep)
}

// handleCatalog lists the catalog, optionally narrowed to a category or module.
func (s *FlowcheckServer) handleCatalog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	module := req.GetString("module", "")
	if module != "" && category == "" {
		return mcp.NewToolResultError("module requires category"), nil
	}

	c, _ := s.current()
	tree := c.Tree()
	if category == "" {
		return marshalResult(map[string]any{
			"categories": tree,
			"paths":      c.Paths(),
		})
	}

	cat, ok := findCategory(tree, category)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown category %q. Available categories: %s",
			category, strings.Join(c.Categories(), ", "))), nil
	}
	if module == "" {
		return marshalResult(cat)
	}

	for _, m := range cat.Modules {
		if m.Name == module {
			return marshalResult(m)
		}
	}
	mods, _ := c.Modules(category)
	return mcp.NewToolResultError(fmt.Sprintf("category %q has no module %q. Available modules: %s",
		category, module, strings.Join(mods, ", "))), nil
}

// --- Helpers ---

// documentArg reads the definition object, or parses the document text.
func documentArg(req mcp.CallToolRequest) (any, *mcp.CallToolResult) {
	args := req.GetArguments()
	if def, ok := args["definition"]; ok && def != nil {
		return def, nil
	}
	text := req.GetString("document", "")
	if text == "" {
		return nil, mcp.NewToolResultError("definition or document is required")
	}
	doc, err := validation.ParseDocument([]byte(text))
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return doc, nil
}

func findCategory(tree []catalog.Category, name string) (catalog.Category, bool) {
	for _, c := range tree {
		if c.Name == name {
			return c, true
		}
	}
	return catalog.Category{}, false
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
