package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/diagram"
	"github.com/rendis/flowcheck/internal/validation"
)

const (
	graphMermaid = "mermaid"
	graphASCII   = "ascii"
)

type graphOptions struct {
	stdin    bool
	format   string
	output   string
	findings bool
}

func newGraphCommand(a *app) *cobra.Command {
	var opts graphOptions

	cmd := &cobra.Command{
		Use:   "graph [file]",
		Short: "Draw a workflow's steps and variable dataflow",
		Long: `Draw the trigger, steps and output display of one workflow, with solid
edges for execution order and dashed edges for each variable passed from the
step that binds it to the steps that reference it.

Unless --findings=false is given the document is validated first and every
node is coloured by the diagnostics located on it. The command exits 0 even
when the workflow has problems; use 'flowcheck validate' to gate on them.`,
		Example: `  flowcheck graph workflow.yaml
  flowcheck graph workflow.yaml --format ascii
  flowcheck graph workflow.yaml --format png --output workflow.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.stdin, "stdin", false, "Read the document from standard input")
	f.StringVarP(&opts.format, "format", "f", graphMermaid, "Output format: mermaid, ascii, png, svg or dot")
	f.StringVarP(&opts.output, "output", "o", "", "Write to this file instead of standard output")
	f.BoolVar(&opts.findings, "findings", true, "Overlay validation findings on the nodes")

	return cmd
}

func runGraph(cmd *cobra.Command, a *app, opts graphOptions, args []string) error {
	switch opts.format {
	case graphMermaid, graphASCII, string(diagram.FormatSVG), string(diagram.FormatDOT):
	case string(diagram.FormatPNG):
		if opts.output == "" {
			return newFailure("--format png needs --output", nil)
		}
	default:
		return newFailure(fmt.Sprintf("unknown format %q (want mermaid, ascii, png, svg or dot)", opts.format), nil)
	}

	var (
		data  []byte
		label string
		err   error
	)
	switch {
	case opts.stdin && len(args) > 0:
		return newFailure("--stdin cannot be combined with a file argument", nil)
	case opts.stdin:
		label = stdinLabel
		data, err = io.ReadAll(a.stdin)
	case len(args) == 1:
		label = args[0]
		data, err = os.ReadFile(label)
	default:
		return newFailure("no document given: pass a file or --stdin", nil)
	}
	if err != nil {
		return newFailure("read "+label, err)
	}

	ctx := cmd.Context()
	doc, err := validation.ParseDocument(data)
	if err != nil {
		return newFailure(label, err)
	}
	def, err := validation.DecodeDefinition(doc)
	if err != nil {
		return newFailure("cannot draw "+label, err)
	}

	var out *validation.Outcome
	if opts.findings {
		cat, _, err := a.loadCatalog(ctx)
		if err != nil {
			return newFailure("load catalog", err)
		}
		v, err := validation.NewValidator(cat,
			validation.WithPolicy(a.cfg.Policy),
			validation.WithLogger(a.logger))
		if err != nil {
			return newFailure("invalid policy", err)
		}
		out = v.Check(ctx, doc, nil)
	}

	var model *diagram.DiagramModel
	if out != nil {
		model, err = diagram.Build(def, out.Result)
	} else {
		model, err = diagram.Build(def, nil)
	}
	if err != nil {
		return newFailure("build diagram", err)
	}

	var rendered []byte
	switch opts.format {
	case graphMermaid:
		rendered = []byte(diagram.RenderMermaid(model))
	case graphASCII:
		rendered = []byte(diagram.RenderASCII(model))
	default:
		rendered, err = diagram.RenderImage(ctx, model, diagram.ImageFormat(opts.format))
		if err != nil {
			return newFailure("render diagram", err)
		}
	}

	if opts.output == "" {
		_, err = cmd.OutOrStdout().Write(rendered)
		return err
	}
	if err := os.WriteFile(opts.output, rendered, 0o644); err != nil {
		return newFailure("write "+opts.output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", StatusOK.Render(symbolOK), opts.output)
	return nil
}
