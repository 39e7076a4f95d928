package expressions

import "context"

// Engine evaluates expressions for built-in capability implementations and policy rules.
// Three implementations: CEL (conditions), GoJQ (queries), Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
