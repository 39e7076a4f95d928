package validation

import (
	"context"
	"time"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Outcome combines static validation with optional deep verification.
type Outcome struct {
	Result *schema.Result
	// Verification is nil when deep verification did not run.
	Verification *VerificationResult
	// DeepSkipped is set when a verifier was given but static validation
	// failed, so no implementation was loaded.
	DeepSkipped bool
	Elapsed     time.Duration
}

// Unverified returns the steps deep verification did not reach.
func (o *Outcome) Unverified() []string {
	if o.Verification == nil {
		return nil
	}
	return o.Verification.Unverified
}

// Valid reports whether the document passed every check that ran and deep
// verification, if requested, was complete.
func (o *Outcome) Valid() bool {
	return o.Result.Valid() && len(o.Unverified()) == 0
}

// Passed reports whether the document is structurally sound, every capability
// path resolves and, when deep verification was requested, it ran and every
// implementation loaded and was checked. Dataflow and output-shape errors do
// not count on their own, but they keep a requested deep verification from
// running.
func (o *Outcome) Passed() bool {
	return !o.DeepSkipped && len(o.Unverified()) == 0 && !hasGating(o.Result)
}

// gating kinds fail Passed.
func gating(k schema.Kind) bool {
	switch k {
	case schema.KindSchemaViolation, schema.KindCapabilityNotFound,
		schema.KindModuleLoadFailed, schema.KindFunctionNotFound:
		return true
	}
	return false
}

func hasGating(r *schema.Result) bool {
	for _, d := range r.Errors() {
		if gating(d.Kind) {
			return true
		}
	}
	return false
}

// Check validates doc and, when verifier is non-nil and static validation
// produced a valid result, verifies implementations. Deep diagnostics are
// appended after the static ones and are subject to the same suppression
// rules.
func (v *Validator) Check(ctx context.Context, doc any, verifier *Verifier) *Outcome {
	start := time.Now()
	out := &Outcome{Result: v.ValidateCompleteContext(ctx, doc)}

	switch {
	case verifier == nil:
	case !out.Result.Valid():
		out.DeepSkipped = true
	default:
		def, err := DecodeDefinition(doc)
		if err == nil {
			out.Verification = verifier.VerifyCapabilityImplementations(ctx, def.Steps)

			merged := &schema.Result{}
			merged.Merge(out.Result)
			merged.Add(out.Verification.Diagnostics...)
			out.Result = v.suppressor.Apply(ctx, merged)
		}
	}

	out.Elapsed = time.Since(start)
	return out
}
