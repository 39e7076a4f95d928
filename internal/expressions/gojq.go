package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"
	"github.com/rendis/flowcheck/pkg/schema"
)

// GoJQEngine runs jq filters. Backs data.json.query and the --query flag that
// reshapes validation reports and run history.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache(compileJQ)}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate runs the filter over data. One output is returned as is, several
// are collected into []any, none yields nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	var input any = map[string]any{}
	if data != nil {
		input = data
	}
	results, err := e.Run(ctx, expression, input)
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
}

// Run evaluates the filter over input and returns every output. Input may be
// any JSON-encodable Go value, structs included: anything jq cannot take
// directly goes through its JSON form.
func (e *GoJQEngine) Run(ctx context.Context, expression string, input any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq filter")
	}

	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	v, err := jqValue(input)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq input for %q is not JSON: %v", expression, err).
			WithCause(err)
	}

	var results []any
	iter := code.RunWithContext(ctx, v)
	for {
		out, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, isErr := out.(error); isErr {
			return nil, jqError(schema.ErrCodeExecution, "evaluation failed", expression, err)
		}
		results = append(results, out)
	}
}

func compileJQ(src string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, jqError(schema.ErrCodeValidation, "parse error", src, err)
	}
	// $ENV is always empty.
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, jqError(schema.ErrCodeValidation, "compile error", src, err)
	}
	return code, nil
}

func jqError(code, what, filter string, cause error) *schema.Error {
	return schema.NewErrorf(code, "jq %s in %q: %s", what, filter, cause.Error()).
		WithCause(cause).
		WithDetails(map[string]any{"expression": filter})
}

// jqValue maps v onto the value set gojq accepts: nil, bool, int, float64,
// string, []any and map[string]any.
func jqValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, int, float64, string:
		return val, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			conv, err := jqValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := jqValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

var _ Engine = (*GoJQEngine)(nil)
