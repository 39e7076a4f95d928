package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// scalarFragments are capability name fragments that usually produce a single
// value rather than a list. Matching is lexical and may over- or under-fire.
var scalarFragments = []string{
	"count", "sum", "avg", "average", "min", "max", "total", "length", "size",
	"hash", "hmac", "uuid", "time", "now", "timestamp", "date", "random",
}

// ValidateOutputDisplay checks the display descriptor against the last step.
// A nil display or nil last step yields an empty result.
func ValidateOutputDisplay(display *schema.OutputDisplay, last *schema.Step, policy Policy) *schema.Result {
	result := &schema.Result{}
	if display == nil || last == nil {
		return result
	}
	if display.Type != schema.DisplayTable {
		return result
	}

	if len(display.Columns) == 0 {
		result.Add(schema.NewDiagnostic(schema.KindOutputShapeError, "outputDisplay.columns",
			"table display requires a non-empty columns list").
			WithRule("missing-table-columns").
			WithSuggestion(`Add columns such as [{"key": "name", "label": "Name"}], or use type "json".`))
	}

	if fragment, ok := scalarFragment(last.CapabilityPath); ok {
		result.Add(schema.NewDiagnostic(schema.KindOutputShapeHeuristicWarning, "outputDisplay.type",
			"table display expects an array, but %q likely produces a single value (matched %q)",
			last.CapabilityPath, fragment).
			WithRule("likely-type-mismatch").
			WithSeverity(policy.heuristicSeverity()).
			WithSuggestion(fmt.Sprintf("Use type %q or %q for a single value, or end the workflow with a step that returns a list.",
				schema.DisplayText, schema.DisplayJSON)))
	}
	return result
}

func scalarFragment(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, f := range scalarFragments {
		if strings.Contains(lower, f) {
			return f, true
		}
	}
	return "", false
}
