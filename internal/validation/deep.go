package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rendis/flowcheck/internal/implementations"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/pool"
	"github.com/rendis/flowcheck/pkg/schema"
)

const defaultVerifyConcurrency = 4

// ImplementationLoader resolves the unit behind a category/module.
// *implementations.Registry satisfies it.
type ImplementationLoader interface {
	Load(ctx context.Context, category, module string) (implementations.Unit, error)
}

// VerificationResult is the outcome of deep verification. Unverified lists the
// ids of steps whose module did not finish loading before the context ended.
type VerificationResult struct {
	Diagnostics []schema.Diagnostic `json:"diagnostics"`
	Unverified  []string            `json:"unverified,omitempty"`
}

// Complete reports whether every step was checked.
func (r *VerificationResult) Complete() bool {
	return len(r.Unverified) == 0
}

// Valid reports whether every step was checked and no diagnostics were produced.
func (r *VerificationResult) Valid() bool {
	return r.Complete() && len(r.Diagnostics) == 0
}

// Verifier loads the implementation unit of every module a workflow uses and
// checks that each step's function is exported.
type Verifier struct {
	loader      ImplementationLoader
	concurrency int
	logger      *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithConcurrency bounds how many modules load at once.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) { v.concurrency = n }
}

// WithVerifierLogger sets the logger. A nil logger discards output.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = l }
}

// NewVerifier creates a Verifier over a loader.
func NewVerifier(loader ImplementationLoader, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		loader:      loader,
		concurrency: defaultVerifyConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logging.Discard()
	}
	return v
}

// moduleOutcome is the load result of one category.module.
type moduleOutcome struct {
	functions []string
	err       error
}

// VerifyCapabilityImplementations loads each distinct module once, in
// parallel, and reports load failures and missing functions per step.
// It never returns an error: when ctx ends, steps whose module has not
// finished loading are listed in Unverified.
func (v *Verifier) VerifyCapabilityImplementations(ctx context.Context, steps []schema.Step) *VerificationResult {
	result := &VerificationResult{Diagnostics: []schema.Diagnostic{}}

	var modules []string
	seen := make(map[string]struct{})
	for _, step := range steps {
		category, module, _, ok := step.Segments()
		if !ok {
			continue
		}
		key := category + "." + module
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			modules = append(modules, key)
		}
	}

	outcomes := v.loadAll(ctx, modules)

	for _, step := range steps {
		category, module, function, ok := step.Segments()
		if !ok {
			continue
		}
		key := category + "." + module
		out, done := outcomes[key]
		if !done {
			result.Unverified = append(result.Unverified, step.ID)
			continue
		}

		loc := stepLocation(step, "capabilityPath")
		if out.err != nil {
			result.Diagnostics = append(result.Diagnostics,
				schema.NewDiagnostic(schema.KindModuleLoadFailed, loc,
					"cannot load implementation of %q: %v", key, out.err).
					WithRule("load").
					WithSuggestion(fmt.Sprintf("Register an implementation for %q or fix its configuration.", key)))
			continue
		}
		if !contains(out.functions, function) {
			result.Diagnostics = append(result.Diagnostics,
				schema.NewDiagnostic(schema.KindFunctionNotFound, loc,
					"implementation of %q does not export %q", key, function).
					WithRule("export").
					WithSuggestion(exportedList(out.functions)))
		}
	}

	if len(result.Unverified) > 0 {
		v.logger.WarnContext(ctx, "deep verification incomplete",
			slog.Int("unverified", len(result.Unverified)),
			slog.String("cause", fmt.Sprint(context.Cause(ctx))))
	}
	return result
}

// loadAll loads modules on a bounded pool. Modules absent from the returned
// map did not finish before ctx ended.
func (v *Verifier) loadAll(ctx context.Context, modules []string) map[string]moduleOutcome {
	var (
		mu       sync.Mutex
		outcomes = make(map[string]moduleOutcome, len(modules))
	)
	record := func(key string, out moduleOutcome) {
		mu.Lock()
		outcomes[key] = out
		mu.Unlock()
	}

	p := pool.New(v.concurrency)
	for _, key := range modules {
		category, module, _ := strings.Cut(key, ".")
		err := p.Submit(ctx, key, func(ctx context.Context) error {
			lctx := logging.WithStepID(ctx, key)
			unit, err := v.loader.Load(lctx, category, module)
			if err != nil {
				if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
					return err
				}
				v.logger.DebugContext(lctx, "module load failed", slog.String("error", err.Error()))
				record(key, moduleOutcome{err: err})
				return err
			}
			defer unit.Close()
			record(key, moduleOutcome{functions: unit.Functions()})
			return nil
		})
		if err != nil {
			break
		}
	}

	done := make(chan []pool.TaskError, 1)
	go func() { done <- p.Wait() }()

	select {
	case failures := <-done:
		for _, f := range failures {
			var pe *pool.PanicError
			if errors.As(f.Err, &pe) {
				record(f.Name, moduleOutcome{err: pe})
			}
		}
	case <-ctx.Done():
	}

	st := p.Stats()
	logging.LogWith(ctx, v.logger).Debug("module loads finished",
		slog.Int64("completed", st.Completed),
		slog.Int64("failed", st.Failed),
		slog.Int64("panics", st.Panics),
		slog.Int64("abandoned", st.Active))

	mu.Lock()
	defer mu.Unlock()
	snapshot := make(map[string]moduleOutcome, len(outcomes))
	for k, o := range outcomes {
		snapshot[k] = o
	}
	return snapshot
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func exportedList(names []string) string {
	if len(names) == 0 {
		return "The implementation exports no functions."
	}
	return "Exported functions: " + strings.Join(names, ", ") + "."
}
