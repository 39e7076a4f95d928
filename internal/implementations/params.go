package implementations

import (
	"encoding/json"

	"github.com/rendis/flowcheck/pkg/schema"
)

func requireString(params map[string]any, key, fn string) (string, error) {
	s, ok := params[key].(string)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "%s requires '%s' string parameter", fn, key)
	}
	return s, nil
}

func optionalString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func requireItems(params map[string]any, fn string) ([]any, error) {
	switch v := params["items"].(type) {
	case []any:
		return v, nil
	case nil:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s requires 'items' array parameter", fn)
	default:
		// Accept typed slices by routing them through JSON.
		b, err := json.Marshal(v)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: 'items' is not an array", fn)
		}
		var out []any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s: 'items' is not an array", fn)
		}
		return out, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
