package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowcheck/pkg/schema"
)

func step(id, outputAs string, inputs map[string]any) schema.Step {
	return schema.Step{ID: id, CapabilityPath: "data.json.query", Inputs: inputs, OutputAs: outputAs}
}

func TestValidateVariableReferences_BuiltinsAlwaysBound(t *testing.T) {
	steps := []schema.Step{
		step("first", "", map[string]any{"to": "{{user.email}}", "body": "{{ trigger.payload[0].text }}"}),
	}
	assert.Empty(t, ValidateVariableReferences(steps).Diagnostics)
}

// A name bound at step j is unbound for every step k <= j and bound for every m > j.
func TestValidateVariableReferences_MonotonicScope(t *testing.T) {
	steps := []schema.Step{
		step("s0", "", map[string]any{"data": "{{rows}}"}),
		step("s1", "rows", map[string]any{"data": "{{rows}}"}),
		step("s2", "", map[string]any{"data": "{{rows}}"}),
		step("s3", "", map[string]any{"data": "{{ rows.items[2] }}"}),
	}

	result := ValidateVariableReferences(steps)
	require.Len(t, result.Diagnostics, 2)

	assert.Equal(t, "steps.s0.inputs", result.Diagnostics[0].Location)
	assert.Equal(t, `variable "rows" is referenced before step "s1" binds it`, result.Diagnostics[0].Message)

	assert.Equal(t, "steps.s1.inputs", result.Diagnostics[1].Location)
	assert.Equal(t, `variable "rows" is this step's own output and is not available to its inputs`, result.Diagnostics[1].Message)

	for _, d := range result.Diagnostics {
		assert.Equal(t, schema.KindUnboundVariable, d.Kind)
	}
}

func TestValidateVariableReferences_NeverBound(t *testing.T) {
	steps := []schema.Step{
		step("a", "orders", nil),
		step("b", "", map[string]any{"data": "{{ordrs}}"}),
	}

	result := ValidateVariableReferences(steps)
	require.Len(t, result.Diagnostics, 1)
	d := result.Diagnostics[0]
	assert.Equal(t, `variable "ordrs" is referenced before it is bound`, d.Message)
	assert.Equal(t, `Produce "ordrs" with outputAs on an earlier step, or check the spelling. Bound so far: user, trigger, orders.`, d.Suggestion)
}

func TestValidateVariableReferences_OnePerNamePerStep(t *testing.T) {
	steps := []schema.Step{
		step("a", "", map[string]any{
			"x": "{{missing}} and {{missing.field}}",
			"y": []any{"{{other}}", map[string]any{"deep": "{{missing[0]}}"}},
		}),
	}

	result := ValidateVariableReferences(steps)
	require.Len(t, result.Diagnostics, 2)
	assert.Contains(t, result.Diagnostics[0].Message, `"missing"`)
	assert.Contains(t, result.Diagnostics[1].Message, `"other"`)
}

func TestValidateVariableReferences_IgnoresMalformedTemplates(t *testing.T) {
	steps := []schema.Step{
		step("a", "", map[string]any{
			"x": "{{ }}",
			"y": "{{1abc}}",
			"z": "{ {nope} }",
			"w": "{{unclosed",
		}),
	}
	assert.Empty(t, ValidateVariableReferences(steps).Diagnostics)
}

func TestValidateVariableReferences_NonStringInputs(t *testing.T) {
	steps := []schema.Step{
		step("a", "", map[string]any{"n": 3, "b": true, "nil": nil}),
	}
	assert.Empty(t, ValidateVariableReferences(steps).Diagnostics)
}

func TestValidateDisplaySource(t *testing.T) {
	steps := []schema.Step{step("a", "rows", nil)}

	assert.Empty(t, ValidateDisplaySource(&schema.OutputDisplay{Type: schema.DisplayTable, Source: "{{rows}}"}, steps).Diagnostics)
	assert.Empty(t, ValidateDisplaySource(&schema.OutputDisplay{Type: schema.DisplayText}, steps).Diagnostics)
	assert.Empty(t, ValidateDisplaySource(nil, steps).Diagnostics)

	result := ValidateDisplaySource(&schema.OutputDisplay{Type: schema.DisplayJSON, Source: "{{ result.items }}"}, steps)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "outputDisplay.source", result.Diagnostics[0].Location)
	assert.Equal(t, schema.KindUnboundVariable, result.Diagnostics[0].Kind)
}
