package implementations

import (
	"context"

	"github.com/rendis/flowcheck/internal/expressions"
)

func expressionFunctions(ev *expressions.ExprEngine) map[string]Func {
	return map[string]Func{
		"evaluate": func(ctx context.Context, params map[string]any) (any, error) {
			expression, err := requireString(params, "expression", "logic.expression.evaluate")
			if err != nil {
				return nil, err
			}
			data, _ := params["data"].(map[string]any)
			return ev.Evaluate(ctx, expression, data)
		},
	}
}

func conditionFunctions(cel *expressions.CELEngine) map[string]Func {
	return map[string]Func{
		"evaluate": func(ctx context.Context, params map[string]any) (any, error) {
			condition, err := requireString(params, "condition", "logic.condition.evaluate")
			if err != nil {
				return nil, err
			}
			data := map[string]any{}
			if input, ok := params["input"].(map[string]any); ok {
				data["input"] = input
			}
			return cel.EvaluateBool(ctx, condition, data)
		},
	}
}
