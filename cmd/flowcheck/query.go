package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rendis/flowcheck/internal/expressions"
)

// writeJSON prints v as indented JSON. With a jq filter, each filter output is
// printed instead, one document per output.
func writeJSON(ctx context.Context, w io.Writer, jq *expressions.GoJQEngine, filter string, v any) error {
	if filter == "" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return newFailure("encode output", err)
		}
		fmt.Fprintln(w, string(b))
		return nil
	}

	results, err := jq.Run(ctx, filter, v)
	if err != nil {
		return newFailure("--query", err)
	}
	for _, res := range results {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return newFailure("encode query result", err)
		}
		fmt.Fprintln(w, string(b))
	}
	return nil
}
