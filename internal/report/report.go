// Package report renders validation results for people and for machines.
// The text and JSON forms carry the same fields.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Record is the stable wire shape of one diagnostic.
type Record struct {
	Location   string `json:"location" jsonschema:"required"`
	Message    string `json:"message" jsonschema:"required"`
	Kind       string `json:"kind" jsonschema:"required,enum=schema-violation,enum=capability-not-found,enum=unbound-variable,enum=output-shape-error,enum=output-shape-heuristic-warning,enum=module-load-failed,enum=function-not-found"`
	Severity   string `json:"severity" jsonschema:"required,enum=error,enum=warning"`
	Rule       string `json:"rule,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Report is the machine-readable outcome of validating one document.
type Report struct {
	RunID       string   `json:"run_id,omitempty"`
	Document    string   `json:"document,omitempty"`
	Valid       bool     `json:"valid" jsonschema:"required"`
	Diagnostics []Record `json:"diagnostics" jsonschema:"required"`
	// Unverified lists step ids deep verification could not check in time.
	Unverified []string `json:"unverified,omitempty"`
}

// NewRecord converts a diagnostic to its wire shape.
func NewRecord(d schema.Diagnostic) Record {
	return Record{
		Location:   d.Location,
		Message:    d.Message,
		Kind:       d.Kind.String(),
		Severity:   string(d.Severity),
		Rule:       d.Rule,
		Suggestion: d.Suggestion,
	}
}

// New builds a report. Valid is false when the result has error diagnostics
// or any step is unverified.
func New(document string, result *schema.Result, unverified []string) Report {
	r := Report{
		Document:    document,
		Valid:       true,
		Diagnostics: []Record{},
		Unverified:  unverified,
	}
	if result != nil {
		r.Valid = result.Valid()
		for _, d := range result.Diagnostics {
			r.Diagnostics = append(r.Diagnostics, NewRecord(d))
		}
	}
	if len(unverified) > 0 {
		r.Valid = false
	}
	return r
}

// JSON encodes a report as indented JSON.
func JSON(r Report) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return b, nil
}

// Format renders diagnostics as a numbered, indented list with a blank line
// between entries. An empty list renders as a single line.
func Format(diags []schema.Diagnostic) string {
	if len(diags) == 0 {
		return "No problems found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s:\n", len(diags), plural(len(diags), "problem", "problems"))
	for i, d := range diags {
		b.WriteString("\n")
		writeEntry(&b, i+1, NewRecord(d))
	}
	return b.String()
}

// FormatUnverified renders the steps deep verification did not reach.
func FormatUnverified(steps []string) string {
	if len(steps) == 0 {
		return ""
	}
	return fmt.Sprintf("Not verified before the deadline (%d %s): %s\n",
		len(steps), plural(len(steps), "step", "steps"), strings.Join(steps, ", "))
}

func writeEntry(b *strings.Builder, n int, r Record) {
	prefix := fmt.Sprintf("%3d. ", n)
	indent := strings.Repeat(" ", len(prefix))

	fmt.Fprintf(b, "%s[%s] %s at %s\n", prefix, r.Kind, r.Severity, r.Location)
	for _, line := range strings.Split(r.Message, "\n") {
		fmt.Fprintf(b, "%s%s\n", indent, line)
	}
	if r.Rule != "" {
		fmt.Fprintf(b, "%sRule: %s\n", indent, r.Rule)
	}
	if r.Suggestion != "" {
		fmt.Fprintf(b, "%sSuggestion: %s\n", indent, r.Suggestion)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
