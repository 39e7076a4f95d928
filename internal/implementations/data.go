package implementations

import (
	"context"
	"encoding/json"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/pkg/schema"
)

func jsonFunctions(jq *expressions.GoJQEngine) map[string]Func {
	return map[string]Func{
		"query": func(ctx context.Context, params map[string]any) (any, error) {
			filter, err := requireString(params, "filter", "data.json.query")
			if err != nil {
				return nil, err
			}
			results, err := jq.Run(ctx, filter, params["data"])
			if err != nil {
				return nil, err
			}
			switch len(results) {
			case 0:
				return nil, nil
			case 1:
				return results[0], nil
			default:
				return results, nil
			}
		},
		"parse": func(_ context.Context, params map[string]any) (any, error) {
			text, err := requireString(params, "text", "data.json.parse")
			if err != nil {
				return nil, err
			}
			var out any
			if err := json.Unmarshal([]byte(text), &out); err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "data.json.parse: %v", err).WithCause(err)
			}
			return out, nil
		},
		"stringify": func(_ context.Context, params map[string]any) (any, error) {
			var (
				b   []byte
				err error
			)
			if indent, _ := params["indent"].(bool); indent {
				b, err = json.MarshalIndent(params["data"], "", "  ")
			} else {
				b, err = json.Marshal(params["data"])
			}
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "data.json.stringify: %v", err).WithCause(err)
			}
			return string(b), nil
		},
	}
}

func arrayFunctions(ev *expressions.ExprEngine) map[string]Func {
	return map[string]Func{
		"count": func(_ context.Context, params map[string]any) (any, error) {
			items, err := requireItems(params, "data.array.count")
			if err != nil {
				return nil, err
			}
			return len(items), nil
		},
		"sum": func(_ context.Context, params map[string]any) (any, error) {
			items, err := requireItems(params, "data.array.sum")
			if err != nil {
				return nil, err
			}
			field := optionalString(params, "field", "")

			var total float64
			for i, it := range items {
				v := it
				if field != "" {
					obj, ok := it.(map[string]any)
					if !ok {
						return nil, schema.NewErrorf(schema.ErrCodeExecution, "data.array.sum: item %d is not an object", i)
					}
					v = obj[field]
				}
				f, ok := toFloat(v)
				if !ok {
					return nil, schema.NewErrorf(schema.ErrCodeExecution, "data.array.sum: item %d is not numeric", i)
				}
				total += f
			}
			return total, nil
		},
		"filter": func(ctx context.Context, params map[string]any) (any, error) {
			items, err := requireItems(params, "data.array.filter")
			if err != nil {
				return nil, err
			}
			predicate, err := requireString(params, "predicate", "data.array.filter")
			if err != nil {
				return nil, err
			}

			out := make([]any, 0, len(items))
			for i, it := range items {
				keep, err := ev.Match(ctx, predicate, map[string]any{"item": it, "index": i})
				if err != nil {
					return nil, err
				}
				if keep {
					out = append(out, it)
				}
			}
			return out, nil
		},
		"map": func(ctx context.Context, params map[string]any) (any, error) {
			items, err := requireItems(params, "data.array.map")
			if err != nil {
				return nil, err
			}
			expression, err := requireString(params, "expression", "data.array.map")
			if err != nil {
				return nil, err
			}

			out := make([]any, 0, len(items))
			for i, it := range items {
				v, err := ev.Evaluate(ctx, expression, map[string]any{"item": it, "index": i})
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		},
	}
}
