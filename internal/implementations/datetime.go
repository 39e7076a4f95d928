package implementations

import (
	"context"
	"time"

	"github.com/rendis/flowcheck/pkg/schema"
)

func datetimeFunctions(now func() time.Time) map[string]Func {
	return map[string]Func{
		"now": func(_ context.Context, params map[string]any) (any, error) {
			loc, err := time.LoadLocation(optionalString(params, "timezone", "UTC"))
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "utilities.datetime.now: %v", err)
			}
			return now().In(loc).Format(time.RFC3339), nil
		},
		"format": func(_ context.Context, params map[string]any) (any, error) {
			raw, err := requireString(params, "time", "utilities.datetime.format")
			if err != nil {
				return nil, err
			}
			layout, err := requireString(params, "layout", "utilities.datetime.format")
			if err != nil {
				return nil, err
			}
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "utilities.datetime.format: %v", err)
			}
			return t.Format(layout), nil
		},
	}
}
