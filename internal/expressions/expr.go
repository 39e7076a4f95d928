package expressions

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/flowcheck/pkg/schema"
)

// ExprEngine runs expr-lang programs. Backs logic.expression.evaluate, the
// data.array predicates and the history --where filter.
//
// No typed environment is declared, so a program compiled once serves any
// variable set; names missing at run time evaluate to nil.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache(compileExpr)}
}

func (e *ExprEngine) Name() string { return "expr" }

// Evaluate runs expression with the keys of env as top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, exprError(schema.ErrCodeExecution, "evaluation failed", expression, err)
	}
	return out, nil
}

// Match evaluates a predicate. Anything but a bool result is an execution error.
func (e *ExprEngine) Match(ctx context.Context, predicate string, env map[string]any) (bool, error) {
	v, err := e.Evaluate(ctx, predicate, env)
	if err != nil {
		return false, err
	}
	ok, isBool := v.(bool)
	if !isBool {
		return false, exprError(schema.ErrCodeExecution, "predicate is not boolean", predicate,
			fmt.Errorf("got %T", v))
	}
	return ok, nil
}

func compileExpr(src string) (*vm.Program, error) {
	prg, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, exprError(schema.ErrCodeValidation, "compile error", src, err)
	}
	return prg, nil
}

func exprError(code, what, expression string, cause error) *schema.Error {
	return schema.NewErrorf(code, "expr %s in %q: %s", what, expression, cause.Error()).
		WithCause(cause).
		WithDetails(map[string]any{"expression": expression})
}

var _ Engine = (*ExprEngine)(nil)
