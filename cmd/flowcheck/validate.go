package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/report"
	"github.com/rendis/flowcheck/internal/store"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/internal/watch"
	"github.com/rendis/flowcheck/pkg/schema"
)

const (
	formatText = "text"
	formatJSON = "json"

	stdinLabel   = "<stdin>"
	nextRunCount = 3
)

type validateOptions struct {
	stdin  bool
	deep   bool
	watch  bool
	record bool
	strict bool
	format string
	query  string
}

func newValidateCommand(a *app) *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate [file|glob]...",
		Short: "Validate workflow definitions",
		Long: `Validate one or more workflow definitions (YAML or JSON).

Arguments may be file paths or doublestar globs such as 'flows/**/*.yaml'.
With --stdin the document is read from standard input; content starting
with '{' is parsed as JSON, anything else as YAML.

The command exits 0 only when every document is structurally valid, every
capability path resolves and, with --deep, every implementation loads and
exports the called function. --deep runs only on documents without errors;
dataflow or output display errors skip it and fail the run. Diagnostics are
printed to stderr, except with --format json, which writes the full report
(diagnostics included) to stdout. --query reshapes that report with a jq
filter; several documents are filtered as one array.`,
		Example: `  flowcheck validate workflow.yaml
  flowcheck validate 'flows/**/*.yaml' --deep
  cat workflow.json | flowcheck validate --stdin --format json
  flowcheck validate 'flows/*.yaml' -f json --query '.[] | select(.valid | not) | .document'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, a, opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.stdin, "stdin", false, "Read a single document from standard input")
	f.BoolVar(&opts.deep, "deep", false, "Load every implementation the workflow uses and check exported functions")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Re-validate files when they change")
	f.BoolVar(&opts.record, "record", false, "Record each run in the catalog database")
	f.BoolVar(&opts.strict, "strict", false, "Also fail on dataflow and output display errors")
	f.StringVarP(&opts.format, "format", "f", formatText, "Output format: text or json")
	f.StringVarP(&opts.query, "query", "q", "", "jq filter applied to the JSON report (needs --format json)")
	f.String("heuristic-severity", string(schema.SeverityError), "Severity of output shape heuristics: error or warning")
	f.Duration("deep-timeout", 10*time.Second, "Deadline for deep verification of one document")
	f.Int("concurrency", 4, "Modules loaded in parallel during deep verification")

	a.bind(cmd, "policy.heuristic_severity", "heuristic-severity")
	a.bind(cmd, "deep.timeout", "deep-timeout")
	a.bind(cmd, "deep.concurrency", "concurrency")

	return cmd
}

func runValidate(cmd *cobra.Command, a *app, opts validateOptions, args []string) error {
	switch {
	case opts.format != formatText && opts.format != formatJSON:
		return newFailure(fmt.Sprintf("unknown format %q (want text or json)", opts.format), nil)
	case opts.query != "" && opts.format != formatJSON:
		return newFailure("--query needs --format json", nil)
	case opts.stdin && len(args) > 0:
		return newFailure("--stdin cannot be combined with file arguments", nil)
	case opts.stdin && opts.watch:
		return newFailure("--watch needs file arguments", nil)
	case !opts.stdin && len(args) == 0:
		return newFailure("no documents given: pass files, globs or --stdin", nil)
	}

	ctx := cmd.Context()
	r, err := newValidateRunner(ctx, a, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer r.close()

	if opts.stdin {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return newFailure("read standard input", err)
		}
		r.run(ctx, stdinLabel, data)
		return r.finish(ctx)
	}

	files, err := expandArgs(args)
	if err != nil {
		return err
	}
	for _, f := range files {
		r.runFile(ctx, f)
	}

	if !opts.watch {
		return r.finish(ctx)
	}
	if err := r.flushJSON(ctx); err != nil {
		return err
	}
	return r.watch(ctx, files)
}

// expandArgs resolves glob arguments and removes duplicates, keeping order.
func expandArgs(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, newFailure(fmt.Sprintf("bad pattern %q", arg), err)
		}
		if len(matches) == 0 {
			return nil, newFailure(fmt.Sprintf("no files match %q", arg), nil)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return files, nil
}

// validateRunner validates documents one at a time and accumulates the
// overall pass/fail state.
type validateRunner struct {
	a      *app
	opts   validateOptions
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	jq          *expressions.GoJQEngine
	validator   *validation.Validator
	verifier    *validation.Verifier
	catalogName string
	store       store.Store

	mu      sync.Mutex
	failed  bool
	reports []report.Report
}

func newValidateRunner(ctx context.Context, a *app, opts validateOptions, stdout, stderr io.Writer) (*validateRunner, error) {
	cat, name, err := a.loadCatalog(ctx)
	if err != nil {
		return nil, newFailure("load catalog", err)
	}

	v, err := validation.NewValidator(cat,
		validation.WithPolicy(a.cfg.Policy),
		validation.WithLogger(a.logger))
	if err != nil {
		return nil, newFailure("invalid policy", err)
	}

	r := &validateRunner{
		a:           a,
		opts:        opts,
		stdout:      stdout,
		stderr:      stderr,
		logger:      a.logger,
		jq:          expressions.NewGoJQEngine(),
		validator:   v,
		catalogName: name,
	}

	if opts.deep {
		reg, err := a.registry()
		if err != nil {
			return nil, newFailure("register implementations", err)
		}
		r.verifier = validation.NewVerifier(reg,
			validation.WithConcurrency(a.cfg.Deep.Concurrency),
			validation.WithVerifierLogger(a.logger))
	}

	if opts.record {
		st, err := a.openStore(ctx)
		if err != nil {
			return nil, newFailure("open catalog database", err)
		}
		r.store = st
	}
	return r, nil
}

func (r *validateRunner) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (r *validateRunner) runFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.fail(path, err)
		return
	}
	r.run(ctx, path, data)
}

// run validates one document and prints its outcome.
func (r *validateRunner) run(ctx context.Context, label string, data []byte) {
	ctx, runID := logging.NewRun(ctx)
	ctx = logging.WithDocument(ctx, label)
	log := logging.LogWith(ctx, r.logger)

	doc, err := validation.ParseDocument(data)
	if err != nil {
		r.fail(label, err)
		return
	}
	if label == stdinLabel {
		if name := validation.DocumentName(doc); name != "" {
			label = name
		}
	}

	checkCtx := ctx
	if r.verifier != nil {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, r.a.cfg.Deep.Timeout)
		defer cancel()
	}
	out := r.validator.Check(checkCtx, doc, r.verifier)

	passed := out.Passed()
	if r.opts.strict {
		passed = out.Valid()
	}
	log.Debug("document checked",
		slog.Bool("passed", passed),
		slog.Int("diagnostics", len(out.Result.Diagnostics)),
		slog.Duration("elapsed", out.Elapsed))

	if r.store != nil {
		r.record(ctx, runID, label, out)
	}

	rep := report.New(label, out.Result, out.Unverified())
	rep.RunID = runID

	r.mu.Lock()
	defer r.mu.Unlock()
	if !passed {
		r.failed = true
	}
	if r.opts.format == formatJSON {
		r.reports = append(r.reports, rep)
		return
	}
	r.printText(label, doc, out, passed)
}

func (r *validateRunner) record(ctx context.Context, runID, label string, out *validation.Outcome) {
	err := r.store.AppendRun(ctx, &store.ValidationRun{
		ID:          runID,
		Document:    label,
		Catalog:     r.catalogName,
		Valid:       out.Valid(),
		ErrorCount:  len(out.Result.Errors()),
		Diagnostics: out.Result.Diagnostics,
		Unverified:  out.Unverified(),
		DurationMs:  out.Elapsed.Milliseconds(),
	})
	if err != nil {
		logging.LogWith(ctx, r.logger).Warn("failed to record validation run", slog.String("error", err.Error()))
	}
}

func (r *validateRunner) printText(label string, doc any, out *validation.Outcome, passed bool) {
	diags := out.Result.Diagnostics
	unverified := out.Unverified()
	elapsed := Muted.Render(fmt.Sprintf("(%s)", out.Elapsed.Round(time.Millisecond)))

	switch {
	case !passed:
		fmt.Fprintf(r.stdout, "%s %s: %s %s\n", StatusError.Render(symbolError), Bold.Render(label), problems(len(diags)), elapsed)
	case len(diags) > 0:
		fmt.Fprintf(r.stdout, "%s %s: %s %s\n", StatusWarn.Render(symbolWarn), Bold.Render(label), problems(len(diags)), elapsed)
	default:
		fmt.Fprintf(r.stdout, "%s %s %s\n", StatusOK.Render(symbolOK), Bold.Render(label), elapsed)
	}

	if out.Result.Count(schema.KindSchemaViolation) == 0 {
		if summary := triggerSummary(doc, time.Now()); summary != "" {
			fmt.Fprintln(r.stdout, Muted.Render("  trigger: "+summary))
		}
	}

	if len(diags) > 0 {
		fmt.Fprint(r.stderr, report.Format(diags))
	}
	if len(unverified) > 0 {
		fmt.Fprint(r.stderr, report.FormatUnverified(unverified))
	}
	if out.DeepSkipped {
		fmt.Fprintln(r.stderr, Muted.Render("Deep verification skipped: fix the problems above first."))
	}
}

func problems(n int) string {
	if n == 1 {
		return "1 problem"
	}
	return fmt.Sprintf("%d problems", n)
}

// fail reports a document that could not be read or parsed.
func (r *validateRunner) fail(label string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = true
	fmt.Fprintf(r.stderr, "%s %s: %v\n", StatusError.Render(symbolError), Bold.Render(label), err)
}

func (r *validateRunner) flushJSON(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.format != formatJSON || len(r.reports) == 0 {
		return nil
	}

	reports := r.reports
	r.reports = nil

	if r.opts.query != "" {
		var v any = reports
		if len(reports) == 1 {
			v = reports[0]
		}
		return writeJSON(ctx, r.stdout, r.jq, r.opts.query, v)
	}

	var (
		b   []byte
		err error
	)
	if len(reports) == 1 {
		b, err = report.JSON(reports[0])
	} else {
		b, err = json.MarshalIndent(reports, "", "  ")
	}
	if err != nil {
		return newFailure("encode report", err)
	}
	fmt.Fprintln(r.stdout, string(b))
	return nil
}

func (r *validateRunner) finish(ctx context.Context) error {
	if err := r.flushJSON(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return errInvalid
	}
	return nil
}

// watch re-validates files as they change until interrupted.
func (r *validateRunner) watch(ctx context.Context, files []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	labels := make(map[string]string, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return newFailure("resolve path", err)
		}
		labels[abs] = f
	}

	w, err := watch.New(watch.Config{
		Logger: r.logger,
		OnChange: func(path string) {
			label, ok := labels[path]
			if !ok {
				label = path
			}
			r.runFile(ctx, label)
			if err := r.flushJSON(ctx); err != nil {
				r.logger.Error("failed to write report", slog.String("error", err.Error()))
			}
		},
	})
	if err != nil {
		return newFailure("start watcher", err)
	}
	defer w.Close()

	if err := w.Add(files...); err != nil {
		return newFailure("watch files", err)
	}

	fmt.Fprintln(r.stderr, Muted.Render(fmt.Sprintf("Watching %d file(s). Press Ctrl+C to stop.", len(w.Files()))))
	<-ctx.Done()
	return nil
}

// triggerSummary describes the workflow trigger and, for cron triggers, the
// next activations after now.
func triggerSummary(doc any, now time.Time) string {
	def, err := validation.DecodeDefinition(doc)
	if err != nil || def.Trigger == nil {
		return ""
	}
	tc, err := def.Trigger.Decode()
	if err != nil {
		return ""
	}

	summary := tc.Describe()
	cron, ok := tc.(schema.CronTrigger)
	if !ok {
		return summary
	}
	runs, err := validation.NextRuns(cron.Schedule, cron.Timezone, now, nextRunCount)
	if err != nil || len(runs) == 0 {
		return summary
	}
	next := make([]string, len(runs))
	for i, t := range runs {
		next[i] = t.Format(time.RFC3339)
	}
	return summary + ", next: " + strings.Join(next, ", ")
}
