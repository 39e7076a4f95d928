package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/internal/store"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		document string
		failed   bool
		since    time.Duration
		limit    int
		asJSON   bool
		where    string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded validation runs",
		Long: `List runs recorded with 'validate --record', newest first.

--where keeps runs matching an expr predicate over these variables:
id, document, sequence, catalog, valid, errors, kinds (diagnostic kinds),
unverified, duration_ms and created_at. --limit applies before --where.
--query prints the runs as JSON reshaped by a jq filter.`,
		Example: `  flowcheck history --catalog-db flows.db
  flowcheck history --catalog-db flows.db --document flows/onboarding.yaml --failed --since 24h
  flowcheck history --catalog-db flows.db --where '"unbound-variable" in kinds && duration_ms > 50'
  flowcheck history --catalog-db flows.db --query 'group_by(.document) | map({document: .[0].document, runs: length})'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return newFailure("open catalog database", err)
			}
			defer st.Close()

			filter := store.RunFilter{Document: document, Limit: limit}
			if failed {
				valid := false
				filter.ValidOnly = &valid
			}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			runs, err := st.ListRuns(ctx, filter)
			if err != nil {
				return newFailure("list runs", err)
			}
			if where != "" {
				if runs, err = matchRuns(ctx, expressions.NewExprEngine(), where, runs); err != nil {
					return newFailure("--where", err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON || query != "" {
				if runs == nil {
					runs = []*store.ValidationRun{}
				}
				return writeJSON(ctx, out, expressions.NewGoJQEngine(), query, runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, Muted.Render("No runs recorded."))
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tSEQ\tRESULT\tERRORS\tCATALOG\tDURATION\tAT")
			for _, r := range runs {
				result := "valid"
				if !r.Valid {
					result = "invalid"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%dms\t%s\n",
					r.Document, r.Sequence, result, r.ErrorCount, r.Catalog, r.DurationMs, r.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&document, "document", "", "Only runs of this document")
	f.BoolVar(&failed, "failed", false, "Only invalid runs")
	f.DurationVar(&since, "since", 0, "Only runs newer than this (e.g. 24h)")
	f.IntVar(&limit, "limit", 20, "Maximum runs to list")
	f.BoolVar(&asJSON, "json", false, "Output JSON")
	f.StringVar(&where, "where", "", "Only runs matching this expr predicate")
	f.StringVarP(&query, "query", "q", "", "jq filter applied to the JSON run list (implies --json)")
	return cmd
}

// matchRuns keeps the runs for which predicate holds.
func matchRuns(ctx context.Context, ev *expressions.ExprEngine, predicate string, runs []*store.ValidationRun) ([]*store.ValidationRun, error) {
	var kept []*store.ValidationRun
	for _, r := range runs {
		ok, err := ev.Match(ctx, predicate, runEnv(r))
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func runEnv(r *store.ValidationRun) map[string]any {
	kinds := make([]string, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		kinds = append(kinds, d.Kind.String())
	}
	unverified := r.Unverified
	if unverified == nil {
		unverified = []string{}
	}
	return map[string]any{
		"id":          r.ID,
		"document":    r.Document,
		"sequence":    r.Sequence,
		"catalog":     r.Catalog,
		"valid":       r.Valid,
		"errors":      r.ErrorCount,
		"kinds":       kinds,
		"unverified":  unverified,
		"duration_ms": r.DurationMs,
		"created_at":  r.CreatedAt,
	}
}
