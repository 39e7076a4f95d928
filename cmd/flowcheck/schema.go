package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

func newSchemaCommand() *cobra.Command {
	var (
		reportSchema bool
		trigger      string
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the workflow JSON Schema",
		Long: `Print the JSON Schema workflow definitions are validated against.

With --trigger the sub-schema for one trigger type's config block is
printed instead; with --report the schema of the JSON report written by
'validate --format json'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case reportSchema:
				b, err := report.GenerateJSONSchema()
				if err != nil {
					return newFailure("generate report schema", err)
				}
				fmt.Fprintln(out, string(b))
			case trigger != "":
				b, ok := validation.TriggerSchema(schema.TriggerType(trigger))
				if !ok {
					return newFailure(fmt.Sprintf("unknown trigger type %q", trigger), nil)
				}
				fmt.Fprintln(out, string(b))
			default:
				fmt.Fprintln(out, string(validation.WorkflowSchema()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reportSchema, "report", false, "Print the validation report schema")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Print the config schema of one trigger type")
	cmd.MarkFlagsMutuallyExclusive("report", "trigger")
	return cmd
}
