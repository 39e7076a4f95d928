package validation

import (
	"context"
	"fmt"

	"github.com/rendis/flowcheck/internal/expressions"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Policy tunes how diagnostics are reported.
type Policy struct {
	// HeuristicSeverity applies to output-shape-heuristic-warning. Defaults to error.
	HeuristicSeverity schema.Severity `mapstructure:"heuristic_severity" json:"heuristic_severity"`

	// Suppress lists CEL conditions over kind, location, message, severity and
	// rule. A diagnostic matching any condition is dropped.
	Suppress []string `mapstructure:"suppress" json:"suppress,omitempty"`
}

// DefaultPolicy reports heuristic mismatches as errors and suppresses nothing.
func DefaultPolicy() Policy {
	return Policy{HeuristicSeverity: schema.SeverityError}
}

func (p Policy) heuristicSeverity() schema.Severity {
	if p.HeuristicSeverity == "" {
		return schema.SeverityError
	}
	return p.HeuristicSeverity
}

var suppressVars = []string{"kind", "location", "message", "severity", "rule"}

// Suppressor filters diagnostics with compiled CEL rules.
type Suppressor struct {
	engine *expressions.CELEngine
	rules  []string
}

// NewSuppressor compiles every rule; the first invalid rule is an error.
func NewSuppressor(rules []string) (*Suppressor, error) {
	engine, err := expressions.NewCELEngine(suppressVars...)
	if err != nil {
		return nil, err
	}
	for i, r := range rules {
		if err := engine.Compile(r); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "policy.suppress[%d]: %v", i, err).WithCause(err)
		}
	}
	return &Suppressor{engine: engine, rules: rules}, nil
}

// Apply returns a result without the suppressed diagnostics. Rules that fail
// to evaluate keep the diagnostic.
func (s *Suppressor) Apply(ctx context.Context, result *schema.Result) *schema.Result {
	if s == nil || len(s.rules) == 0 || result == nil {
		return result
	}

	out := &schema.Result{}
	for _, d := range result.Diagnostics {
		if !s.matches(ctx, d) {
			out.Add(d)
		}
	}
	return out
}

func (s *Suppressor) matches(ctx context.Context, d schema.Diagnostic) bool {
	vars := map[string]any{
		"kind":     d.Kind.String(),
		"location": d.Location,
		"message":  d.Message,
		"severity": string(d.Severity),
		"rule":     d.Rule,
	}
	for _, r := range s.rules {
		ok, err := s.engine.EvaluateBool(ctx, r, vars)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Validate checks the policy values.
func (p Policy) Validate() error {
	switch p.HeuristicSeverity {
	case "", schema.SeverityError, schema.SeverityWarning:
	default:
		return fmt.Errorf("policy.heuristic_severity: unknown severity %q", p.HeuristicSeverity)
	}
	_, err := NewSuppressor(p.Suppress)
	return err
}
