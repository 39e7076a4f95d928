package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/pkg/schema"
)

// BuiltinBindings are visible to every step without being produced by one.
var BuiltinBindings = []string{"user", "trigger"}

// scope is the ordered set of binding names visible at a point in the walk.
type scope struct {
	names map[string]struct{}
	order []string
}

func newScope() *scope {
	s := &scope{names: make(map[string]struct{})}
	for _, b := range BuiltinBindings {
		s.bind(b)
	}
	return s
}

func (s *scope) bind(name string) {
	if _, ok := s.names[name]; ok {
		return
	}
	s.names[name] = struct{}{}
	s.order = append(s.order, name)
}

func (s *scope) has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// ValidateVariableReferences walks the steps in declaration order and reports
// every template reference to a name that is not yet bound. A step's outputAs
// is bound only after its own inputs are checked. Scope never shrinks.
func ValidateVariableReferences(steps []schema.Step) *schema.Result {
	result := &schema.Result{}

	producers := make(map[string]string, len(steps))
	for _, step := range steps {
		if step.OutputAs != "" {
			if _, ok := producers[step.OutputAs]; !ok {
				producers[step.OutputAs] = step.ID
			}
		}
	}

	bound := newScope()
	for _, step := range steps {
		for _, name := range referencedNames(step.Inputs) {
			if bound.has(name) {
				continue
			}
			result.Add(unboundDiagnostic(stepLocation(step, "inputs"), name, step.ID, producers, bound))
		}
		if step.OutputAs != "" {
			bound.bind(step.OutputAs)
		}
	}
	return result
}

// ValidateDisplaySource checks outputDisplay.source against every binding the
// workflow produces.
func ValidateDisplaySource(display *schema.OutputDisplay, steps []schema.Step) *schema.Result {
	result := &schema.Result{}
	if display == nil || display.Source == "" {
		return result
	}

	bound := newScope()
	for _, step := range steps {
		if step.OutputAs != "" {
			bound.bind(step.OutputAs)
		}
	}

	for _, name := range expressions.ExtractNames(display.Source) {
		if bound.has(name) {
			continue
		}
		result.Add(schema.NewDiagnostic(schema.KindUnboundVariable, "outputDisplay.source",
			"display source references %q, which no step binds", name).
			WithRule("unbound-reference").
			WithSuggestion(fmt.Sprintf("Set outputAs: %q on the step whose result should be displayed. Bound names: %s.",
				name, strings.Join(bound.order, ", "))))
	}
	return result
}

// referencedNames serializes inputs to JSON (map keys sorted) and extracts the
// distinct root names of every template reference.
func referencedNames(inputs map[string]any) []string {
	if len(inputs) == 0 {
		return nil
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return nil
	}
	return expressions.ExtractNames(string(b))
}

func unboundDiagnostic(location, name, stepID string, producers map[string]string, bound *scope) schema.Diagnostic {
	msg := fmt.Sprintf("variable %q is referenced before it is bound", name)
	switch producer, ok := producers[name]; {
	case ok && producer == stepID:
		msg = fmt.Sprintf("variable %q is this step's own output and is not available to its inputs", name)
	case ok:
		msg = fmt.Sprintf("variable %q is referenced before step %q binds it", name, producer)
	}

	return schema.NewDiagnostic(schema.KindUnboundVariable, location, "%s", msg).
		WithRule("unbound-reference").
		WithSuggestion(fmt.Sprintf("Produce %q with outputAs on an earlier step, or check the spelling. Bound so far: %s.",
			name, strings.Join(bound.order, ", ")))
}
