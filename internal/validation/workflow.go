package validation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Observer receives the outcome of every complete validation.
type Observer interface {
	ObserveValidation(result *schema.Result, elapsed time.Duration)
}

// Validator runs the structural gate, then the capability, dataflow and
// output passes, concatenating their diagnostics in that order.
// It is safe for concurrent use.
type Validator struct {
	catalog    CapabilityCatalog
	policy     Policy
	suppressor *Suppressor
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithPolicy sets the reporting policy.
func WithPolicy(p Policy) Option {
	return func(v *Validator) { v.policy = p }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a Validator over a catalog. It fails if the embedded
// schemas do not compile or the policy is invalid.
func NewValidator(catalog CapabilityCatalog, opts ...Option) (*Validator, error) {
	if _, err := loadSchemas(); err != nil {
		return nil, err
	}

	v := &Validator{
		catalog: catalog,
		policy:  DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logging.Discard()
	}
	if err := v.policy.Validate(); err != nil {
		return nil, err
	}

	s, err := NewSuppressor(v.policy.Suppress)
	if err != nil {
		return nil, err
	}
	v.suppressor = s
	return v, nil
}

// Policy returns the active policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Catalog returns the catalog capability paths are resolved against.
func (v *Validator) Catalog() CapabilityCatalog {
	return v.catalog
}

// ValidateComplete validates a parsed JSON/YAML document.
func (v *Validator) ValidateComplete(doc any) *schema.Result {
	return v.ValidateCompleteContext(context.Background(), doc)
}

// ValidateCompleteContext is ValidateComplete with a context for log correlation.
func (v *Validator) ValidateCompleteContext(ctx context.Context, doc any) *schema.Result {
	start := time.Now()
	result := v.validate(ctx, doc)
	result = v.suppressor.Apply(ctx, result)

	elapsed := time.Since(start)
	v.logger.DebugContext(ctx, "validation finished",
		slog.Bool("valid", result.Valid()),
		slog.Int("diagnostics", len(result.Diagnostics)),
		slog.Duration("elapsed", elapsed))

	if v.observer != nil {
		v.observer.ObserveValidation(result, elapsed)
	}
	return result
}

// ValidateDefinition validates an already-typed definition.
func (v *Validator) ValidateDefinition(ctx context.Context, def *schema.WorkflowDefinition) *schema.Result {
	if def == nil {
		r := &schema.Result{}
		r.Add(schema.NewDiagnostic(schema.KindSchemaViolation, rootLocation, "workflow definition is nil").
			WithRule("missing-required"))
		return r
	}
	return v.ValidateCompleteContext(ctx, def)
}

func (v *Validator) validate(ctx context.Context, doc any) *schema.Result {
	// Stage 1: structure. Later passes assume a well-typed skeleton.
	result := ValidateStructure(doc)
	if len(result.Diagnostics) > 0 {
		v.logger.DebugContext(ctx, "structural validation failed", slog.Int("violations", len(result.Diagnostics)))
		return result
	}

	def, err := DecodeDefinition(doc)
	if err != nil {
		result.Add(schema.NewDiagnostic(schema.KindSchemaViolation, rootLocation,
			"document does not decode as a workflow definition: %v", err).WithRule("schema"))
		return result
	}

	// Stages 2-4 are independent and always run.
	result.Merge(ValidateCapabilityPaths(def.Steps, v.catalog))
	result.Merge(ValidateVariableReferences(def.Steps))
	result.Merge(ValidateDisplaySource(def.OutputDisplay, def.Steps))
	result.Merge(ValidateOutputDisplay(def.OutputDisplay, def.LastStep(), v.policy))
	return result
}

// DecodeDefinition converts a parsed document into a WorkflowDefinition.
func DecodeDefinition(doc any) (*schema.WorkflowDefinition, error) {
	if def, ok := doc.(*schema.WorkflowDefinition); ok {
		return def, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var def schema.WorkflowDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, err
	}
	return &def, nil
}
