package schema

import (
	"fmt"
	"strings"
)

// Severity indicates whether a diagnostic blocks a document or is advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ParseSeverity accepts "error" or "warning" (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError, nil
	case SeverityWarning:
		return SeverityWarning, nil
	default:
		return "", NewErrorf(ErrCodeConfig, "unknown severity %q (want error or warning)", s)
	}
}

// Kind is the closed set of diagnostic categories.
type Kind uint8

const (
	KindSchemaViolation Kind = iota + 1
	KindCapabilityNotFound
	KindUnboundVariable
	KindOutputShapeError
	KindOutputShapeHeuristicWarning
	KindModuleLoadFailed
	KindFunctionNotFound
)

var kindNames = map[Kind]string{
	KindSchemaViolation:             "schema-violation",
	KindCapabilityNotFound:          "capability-not-found",
	KindUnboundVariable:             "unbound-variable",
	KindOutputShapeError:            "output-shape-error",
	KindOutputShapeHeuristicWarning: "output-shape-heuristic-warning",
	KindModuleLoadFailed:            "module-load-failed",
	KindFunctionNotFound:            "function-not-found",
}

// Kinds returns every diagnostic kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindSchemaViolation,
		KindCapabilityNotFound,
		KindUnboundVariable,
		KindOutputShapeError,
		KindOutputShapeHeuristicWarning,
		KindModuleLoadFailed,
		KindFunctionNotFound,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Advisory reports whether the kind is heuristic and may be demoted to a warning.
func (k Kind) Advisory() bool {
	return k == KindOutputShapeHeuristicWarning
}

// MarshalText encodes the kind as its hyphenated name.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, NewErrorf(ErrCodeValidation, "unknown diagnostic kind %d", uint8(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a hyphenated kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a hyphenated kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, NewErrorf(ErrCodeValidation, "unknown diagnostic kind %q", s)
}

// Diagnostic is a single validation defect with location context.
type Diagnostic struct {
	Location   string   `json:"location"`
	Message    string   `json:"message"`
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Rule       string   `json:"rule,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// NewDiagnostic creates an error-severity diagnostic with a formatted message.
func NewDiagnostic(kind Kind, location, format string, args ...any) Diagnostic {
	return Diagnostic{
		Location: location,
		Message:  fmt.Sprintf(format, args...),
		Kind:     kind,
		Severity: SeverityError,
	}
}

// WithSuggestion returns a copy carrying a suggested fix.
func (d Diagnostic) WithSuggestion(s string) Diagnostic {
	d.Suggestion = s
	return d
}

// WithRule returns a copy tagged with the rule that produced it.
func (d Diagnostic) WithRule(rule string) Diagnostic {
	d.Rule = rule
	return d
}

// WithSeverity returns a copy with the given severity.
func (d Diagnostic) WithSeverity(s Severity) Diagnostic {
	d.Severity = s
	return d
}

// Result is the ordered sequence of diagnostics produced by one or more passes.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Valid returns true if there are no error-severity diagnostics.
func (r *Result) Valid() bool {
	for _, d := range r.Diagnostics {
		if d.Severity != SeverityWarning {
			return false
		}
	}
	return true
}

// Add appends diagnostics in order.
func (r *Result) Add(diags ...Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, diags...)
}

// Merge appends another result's diagnostics after this one's.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
}

// Errors returns the error-severity diagnostics.
func (r *Result) Errors() []Diagnostic {
	return r.bySeverity(SeverityError)
}

// Warnings returns the warning-severity diagnostics.
func (r *Result) Warnings() []Diagnostic {
	return r.bySeverity(SeverityWarning)
}

// Count returns how many diagnostics have the given kind.
func (r *Result) Count(kind Kind) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Result) bySeverity(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// ToError converts the result to an Error if invalid, nil if valid.
func (r *Result) ToError() error {
	if r.Valid() {
		return nil
	}

	errs := r.Errors()
	msg := errs[0].Message
	if len(errs) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(errs))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(errs),
			"warning_count": len(r.Diagnostics) - len(errs),
			"diagnostics":   r.Diagnostics,
		})
}
